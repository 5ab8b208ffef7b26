package agent

import (
	"context"
	"regexp"
	"strings"

	"github.com/rhuss/datasci/pkg/api"
)

// answerFence matches Go code blocks inside a final answer. Blocks tagged
// with another language are left alone.
var answerFence = regexp.MustCompile("(?s)```(?:go|golang)?[ \t]*\n(.*?)```")

// runAnswerCode executes the Go code blocks of a final answer in the run's
// session and inserts the output summary after each block.
func (a *Agent) runAnswerCode(ctx context.Context, answer string) string {
	matches := answerFence.FindAllStringSubmatchIndex(answer, -1)
	if len(matches) == 0 {
		return answer
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(answer[last:m[1]])
		last = m[1]

		code := strings.TrimSpace(answer[m[2]:m[3]])
		if code == "" {
			continue
		}
		obs, err := a.execute(ctx, code)
		if err != nil {
			a.log.Warn("final answer code not executed", "error", err.Error())
			obs = api.NewErrorObservation(a.sessionID, api.ErrorKindTransport, err.Error())
		}
		b.WriteString("\n\nOutput:\n")
		b.WriteString(Summarize(obs, a.cfg.maxObservationChars()))
		b.WriteString("\n")
	}
	b.WriteString(answer[last:])
	return b.String()
}
