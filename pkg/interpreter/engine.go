package interpreter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// interruptSource never parses, so evaluating it runs nothing; only the
// cancellation of its context reaches the interpreter.
const interruptSource = "}"

// maxInterruptAttempts bounds the retries of interrupt when the evaluation
// of interruptSource wins the race against its cancelled context.
const maxInterruptAttempts = 16

// engine is one yaegi interpreter with the writers and the cancellation
// channel it was built with. A Context replaces its engine when a timed out
// evaluation does not stop; the old engine keeps its own writers, so late
// output of the abandoned evaluation never reaches a later run.
type engine struct {
	interp *interp.Interpreter
	stdout *switchWriter
	stderr *switchWriter

	// imported holds the import declarations already evaluated.
	imported map[string]bool

	mu   sync.Mutex
	done <-chan struct{}
}

type evalResult struct {
	v   reflect.Value
	err error
}

func newEngine(c *Context, shared *Shared) (*engine, error) {
	e := &engine{
		stdout:   &switchWriter{},
		stderr:   &switchWriter{},
		imported: make(map[string]bool),
	}
	e.interp = interp.New(interp.Options{
		Stdin:  strings.NewReader(""),
		Stdout: e.stdout,
		Stderr: e.stderr,
	})
	if err := e.interp.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading standard library symbols: %w", err)
	}
	if err := e.interp.Use(symbols(c, e, shared)); err != nil {
		return nil, fmt.Errorf("loading session symbols: %w", err)
	}
	return e, nil
}

// start evaluates src in a goroutine owned by the caller. The channel
// yields once the evaluation has returned, including after an interrupt.
func (e *engine) start(src string) <-chan evalResult {
	ch := make(chan evalResult, 1)
	go func() {
		v, err := e.interp.EvalWithContext(context.Background(), src)
		ch <- evalResult{v: v, err: err}
	}()
	return ch
}

// interrupt makes the running evaluation return at its next statement.
// Code blocked inside a native call returns only once that call does.
func (e *engine) interrupt() {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < maxInterruptAttempts; i++ {
		if _, err := e.interp.EvalWithContext(cancelled, interruptSource); errors.Is(err, context.Canceled) {
			return
		}
	}
}

// eval runs src and waits for it. When run ends first the evaluation is
// interrupted and given grace to return; drained is false if it did not.
func (e *engine) eval(run context.Context, grace time.Duration, src string) (res evalResult, drained bool) {
	ch := e.start(src)
	select {
	case res = <-ch:
		return res, true
	case <-run.Done():
	}

	e.interrupt()
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-ch:
		return evalResult{err: run.Err()}, true
	case <-t.C:
		return evalResult{err: run.Err()}, false
	}
}

func (e *engine) attach(stdout, stderr *boundedBuffer, done <-chan struct{}) {
	e.stdout.set(stdout)
	e.stderr.set(stderr)
	e.setDone(done)
}

func (e *engine) detach() {
	e.stdout.set(nil)
	e.stderr.set(nil)
}

func (e *engine) setDone(done <-chan struct{}) {
	e.mu.Lock()
	e.done = done
	e.mu.Unlock()
}

func (e *engine) runDone() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}
