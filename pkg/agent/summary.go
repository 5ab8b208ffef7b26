package agent

import (
	"fmt"
	"strings"

	"github.com/rhuss/datasci/pkg/api"
)

// Summarize renders an observation as the text the model sees. A summary
// longer than maxChars keeps its head and tail around a marker naming the
// number of characters removed; maxChars <= 0 disables the limit.
func Summarize(obs *api.Observation, maxChars int) string {
	if obs == nil {
		return truncateMiddle("Execution status: error\nErrors:\nExecution failed - no result returned", maxChars)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Execution status: %s", obs.Status)

	stdout := strings.TrimRight(obs.Stdout, "\n")
	if stdout != "" {
		b.WriteString("\nText output:\n")
		b.WriteString(stdout)
	}
	if obs.Result != "" {
		b.WriteString("\nResult: ")
		b.WriteString(obs.Result)
	}
	if len(obs.Artifacts) > 0 {
		b.WriteString("\nArtifacts:")
		for _, a := range obs.Artifacts {
			b.WriteString("\n- ")
			b.WriteString(a)
		}
	}

	stderr := strings.TrimRight(obs.Stderr, "\n")
	if stderr != "" || obs.Error != nil {
		b.WriteString("\nErrors:")
		if stderr != "" {
			b.WriteString("\n")
			b.WriteString(stderr)
		}
		if obs.Error != nil {
			b.WriteString("\n")
			b.WriteString(obs.Error.String())
		}
	}

	if stdout == "" && obs.Result == "" && len(obs.Artifacts) == 0 && obs.Status == api.StatusSuccess {
		b.WriteString("\nCode executed successfully (no explicit output generated)")
	}
	if obs.Truncated {
		b.WriteString("\n(output was truncated by the interpreter)")
	}

	return truncateMiddle(b.String(), maxChars)
}

// truncateMiddle keeps the first and last halves of s when it exceeds
// limit characters.
func truncateMiddle(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	head := limit / 2
	tail := limit - head
	removed := len(runes) - head - tail
	return string(runes[:head]) +
		fmt.Sprintf("\n... %d characters truncated ...\n", removed) +
		string(runes[len(runes)-tail:])
}
