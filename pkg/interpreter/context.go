package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rhuss/datasci/pkg/api"
)

// ErrClosed is returned by Run on a Context that has been closed.
var ErrClosed = errors.New("interpreter: context closed")

var unsafeDirChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// DefaultDrainGrace is how long a timed out evaluation may take to return
// before its interpreter is replaced.
const DefaultDrainGrace = 2 * time.Second

// Options configures a new Context.
type Options struct {
	// OutputRoot is the parent of the per-context output directory.
	// Empty means the system temp directory.
	OutputRoot string

	// MaxOutputBytes caps each of stdout and stderr per run.
	MaxOutputBytes int

	// Shared is the namespace behind the "globals" package. Nil selects
	// ProcessShared().
	Shared *Shared

	// DrainGrace bounds the wait for a timed out evaluation to return. Zero
	// selects DefaultDrainGrace.
	DrainGrace time.Duration
}

// Context is one persistent interpreter. Run is not safe for concurrent
// use; callers serialize runs per Context.
//
// Run does not return before the evaluation it started has returned. An
// evaluation that ignores the interrupt for longer than DrainGrace, usually
// because it is blocked in a native call, is abandoned together with its
// interpreter, and the Context continues with a fresh one.
type Context struct {
	id         string
	outputDir  string
	maxOutput  int
	drainGrace time.Duration
	shared     *Shared

	eng *engine

	closed atomic.Bool
}

// New creates a Context with a fresh interpreter and output directory.
func New(id string, opts Options) (*Context, error) {
	shared := opts.Shared
	if shared == nil {
		shared = ProcessShared()
	}
	grace := opts.DrainGrace
	if grace <= 0 {
		grace = DefaultDrainGrace
	}

	prefix := unsafeDirChars.ReplaceAllString(id, "_")
	if len(prefix) > 32 {
		prefix = prefix[:32]
	}
	if opts.OutputRoot != "" {
		if err := os.MkdirAll(opts.OutputRoot, 0o755); err != nil {
			return nil, fmt.Errorf("creating output root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(opts.OutputRoot, "datasci-"+prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	c := &Context{
		id:         id,
		outputDir:  dir,
		maxOutput:  opts.MaxOutputBytes,
		drainGrace: grace,
		shared:     shared,
	}
	if c.eng, err = newEngine(c, shared); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return c, nil
}

// ID returns the identifier the Context was created with.
func (c *Context) ID() string { return c.id }

// OutputDir returns the directory scanned for artifacts after each run.
func (c *Context) OutputDir() string { return c.outputDir }

// Closed reports whether Close has been called.
func (c *Context) Closed() bool { return c.closed.Load() }

// Run evaluates code with the given timeout (zero means no timeout) and
// returns the observation. Failures of the code itself are reported in the
// observation; the error return is reserved for a closed Context.
func (c *Context) Run(ctx context.Context, code string, timeout time.Duration) (*api.Observation, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	e := c.eng
	stdout := newBoundedBuffer(c.maxOutput)
	stderr := newBoundedBuffer(c.maxOutput)
	e.attach(stdout, stderr, runCtx.Done())
	before := scanOutputDir(c.outputDir)
	start := time.Now()

	result, errInfo, drained := c.eval(e, ctx, runCtx, timeout, code)

	e.detach()
	if !drained {
		errInfo.Message += c.restart()
	}

	return &api.Observation{
		SessionID:       c.id,
		Status:          api.StatusFor(errInfo),
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		Result:          result,
		Error:           errInfo,
		Artifacts:       changedFiles(c.outputDir, before),
		Truncated:       stdout.Truncated() || stderr.Truncated(),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// eval runs the import declarations of code and then its body. drained is
// false when an interrupted evaluation was still running after the grace
// period.
func (c *Context) eval(e *engine, parent, run context.Context, timeout time.Duration, code string) (result string, errInfo *api.ErrorInfo, drained bool) {
	specs, body := splitImports(code)
	if src, keys := importSource(specs, e.imported); src != "" {
		res, drained := e.eval(run, c.drainGrace, src)
		if res.err != nil {
			return "", classify(parent, run, timeout, res.err), drained
		}
		for _, k := range keys {
			e.imported[k] = true
		}
	}

	if strings.TrimSpace(body) == "" {
		return "", nil, true
	}
	res, drained := e.eval(run, c.drainGrace, body)
	if res.err != nil {
		return "", classify(parent, run, timeout, res.err), drained
	}
	if run.Err() != nil {
		return "", classify(parent, run, timeout, run.Err()), drained
	}
	if !reportsResult(body) {
		return "", nil, true
	}
	return formatResult(res.v), nil, true
}

// restart abandons the current engine for a fresh one and returns the note
// appended to the error message. Variables and imports of the session are
// lost; the output directory is kept.
func (c *Context) restart() string {
	old := c.eng
	e, err := newEngine(c, c.shared)
	if err != nil {
		slog.Error("replacing interpreter failed", "session_id", c.id, "error", err)
		c.Close()
		return fmt.Sprintf("; the code did not stop within %s and the session was closed", c.drainGrace)
	}
	c.eng = e
	slog.Warn("abandoned interpreter that did not stop", "session_id", c.id, "grace", c.drainGrace.String())
	old.detach()
	return fmt.Sprintf("; the code did not stop within %s, so the interpreter was restarted and session variables and imports were reset", c.drainGrace)
}

// Variables returns the sorted names of the session's global variables and
// constants.
// It must not be called while a run is in progress.
func (c *Context) Variables() []string {
	if c.closed.Load() {
		return nil
	}
	globals := c.eng.interp.Globals()
	names := make([]string, 0, len(globals))
	for name, v := range globals {
		if strings.HasPrefix(name, "_") || (v.IsValid() && v.Kind() == reflect.Func) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the Context. The interpreter itself has no explicit
// teardown; dropping the last reference frees it.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.eng.detach()
	return os.RemoveAll(c.outputDir)
}
