package interpreter

import (
	"fmt"
	"reflect"
	"time"

	"github.com/traefik/yaegi/interp"
)

// symbols returns the packages installed on top of the standard library for
// one engine of a Context. Keys follow the "importpath/name" convention of
// interp.Exports.
func symbols(c *Context, e *engine, shared *Shared) interp.Exports {
	return interp.Exports{
		"globals/globals": {
			"Set":    reflect.ValueOf(shared.Set),
			"Get":    reflect.ValueOf(shared.Get),
			"Delete": reflect.ValueOf(shared.Delete),
			"Keys":   reflect.ValueOf(shared.Keys),
		},
		"session/session": {
			"ID":        reflect.ValueOf(c.ID),
			"OutputDir": reflect.ValueOf(c.OutputDir),
		},
		"time/time": {
			"Sleep": reflect.ValueOf(e.sleep),
		},
		"os/os": {
			"Exit": reflect.ValueOf(exit),
		},
	}
}

// sleep returns early once the current run is cancelled, so a timed out
// snippet does not keep a goroutine parked in time.Sleep.
func (e *engine) sleep(d time.Duration) {
	done := e.runDone()
	if done == nil {
		time.Sleep(d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-done:
	}
}

func exit(code int) {
	panic(fmt.Sprintf("os.Exit(%d) called", code))
}
