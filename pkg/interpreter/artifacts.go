package interpreter

import (
	"io/fs"
	"path/filepath"
	"sort"
	"time"
)

type fileStamp struct {
	size    int64
	modTime time.Time
}

// scanOutputDir records size and modification time of every regular file
// below dir, keyed by slash-separated relative path.
func scanOutputDir(dir string) map[string]fileStamp {
	stamps := make(map[string]fileStamp)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		stamps[filepath.ToSlash(rel)] = fileStamp{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	return stamps
}

// changedFiles lists the files that are new or modified relative to before.
func changedFiles(dir string, before map[string]fileStamp) []string {
	changed := []string{}
	for path, stamp := range scanOutputDir(dir) {
		if prev, ok := before[path]; ok && prev == stamp {
			continue
		}
		changed = append(changed, path)
	}
	sort.Strings(changed)
	return changed
}
