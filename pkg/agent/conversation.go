package agent

import (
	"strings"

	"github.com/rhuss/datasci/pkg/action"
	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/model"
)

// conversation is the ordered turn log of one run.
type conversation struct {
	turns []api.Turn
}

func newConversation(systemPrompt, task string) *conversation {
	return &conversation{turns: []api.Turn{
		{Kind: api.TurnInstruction, Role: string(model.RoleSystem), Content: systemPrompt},
		{Kind: api.TurnInstruction, Role: string(model.RoleUser), Content: task},
	}}
}

func (c *conversation) add(t api.Turn) api.Turn {
	c.turns = append(c.turns, t)
	return t
}

// messages returns the turns that are sent to the model, in order.
func (c *conversation) messages() []model.Message {
	msgs := make([]model.Message, 0, len(c.turns))
	for _, t := range c.turns {
		if t.Role == "" {
			continue
		}
		msgs = append(msgs, model.Message{Role: model.Role(t.Role), Content: t.Content})
	}
	return msgs
}

func (c *conversation) snapshot() []api.Turn {
	out := make([]api.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// assistantMessage renders a parsed action the way the model is asked to
// write it. Anything the model produced after its action (an invented
// observation, a second action) is dropped from the history.
func assistantMessage(a action.Action) string {
	var b strings.Builder
	if a.Thought != "" {
		b.WriteString("Thought: ")
		b.WriteString(a.Thought)
		b.WriteString("\n")
	}
	switch a.Kind {
	case action.KindExecuteCode:
		b.WriteString("Action Input:\n```go\n")
		b.WriteString(a.Code)
		b.WriteString("\n```")
	case action.KindFinalAnswer:
		b.WriteString("Final Answer:\n")
		b.WriteString(a.Answer)
	default:
		return a.Raw
	}
	return b.String()
}

// correctiveMessage is sent back when the model reply could not be parsed.
func correctiveMessage(a action.Action) string {
	return "Observation: Error: the previous response could not be parsed as an action (" + a.Reason + "). " +
		"Follow the format and use exactly one of the two options: a Thought followed by " +
		"Action Input: with a ```go code block, or a Thought followed by Final Answer:."
}

// modelErrorMessage is sent back when the model call itself failed.
func modelErrorMessage(err error) string {
	return "Error occurred: " + err.Error() + ". Please try a different approach."
}
