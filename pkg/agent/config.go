package agent

import "time"

// Defaults applied to zero Config fields.
const (
	DefaultMaxIterations             = 20
	DefaultMaxConsecutiveModelErrors = 3
	DefaultMaxObservationChars       = 10000
)

// Config holds the settings of one agent.
type Config struct {
	// MaxIterations is the number of model calls a run may make before it
	// is terminated with budget_exhausted. Zero or negative means 20.
	MaxIterations int

	// MaxConsecutiveModelErrors ends a run with status failed once this
	// many model calls in a row have failed. Zero or negative means 3.
	MaxConsecutiveModelErrors int

	// ExecTimeout is sent with every execution. Zero leaves the choice to
	// the executor.
	ExecTimeout time.Duration

	// MaxObservationChars bounds the observation summary added to the
	// conversation. Zero or negative means 10000.
	MaxObservationChars int

	// SessionID pins the agent to an existing session. When empty the
	// session returned by the first execution is used and owned by the
	// agent.
	SessionID string

	// ExecuteFinalAnswerCode runs fenced code blocks found in a final
	// answer and appends their output to it.
	ExecuteFinalAnswerCode bool

	// SystemPrompt replaces DefaultSystemPrompt when set.
	SystemPrompt string
}

func (c Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

func (c Config) maxConsecutiveModelErrors() int {
	if c.MaxConsecutiveModelErrors <= 0 {
		return DefaultMaxConsecutiveModelErrors
	}
	return c.MaxConsecutiveModelErrors
}

func (c Config) maxObservationChars() int {
	if c.MaxObservationChars <= 0 {
		return DefaultMaxObservationChars
	}
	return c.MaxObservationChars
}

func (c Config) systemPrompt() string {
	if c.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return c.SystemPrompt
}
