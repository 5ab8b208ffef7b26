package interpreter

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"

	"github.com/rhuss/datasci/pkg/api"
)

var positionPrefix = regexp.MustCompile(`^[\w.-]*\.go:`)

// classify maps an evaluation error to the kind reported to callers. parent
// is the caller's context, run the derived context bounded by the timeout.
func classify(parent, run context.Context, timeout time.Duration, err error) *api.ErrorInfo {
	if parent.Err() != nil {
		return &api.ErrorInfo{Kind: api.ErrorKindCancelled, Message: "execution cancelled: " + parent.Err().Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(run.Err(), context.DeadlineExceeded) {
		return &api.ErrorInfo{Kind: api.ErrorKindTimeout, Message: fmt.Sprintf("execution timed out after %s", timeout)}
	}

	var p interp.Panic
	if errors.As(err, &p) {
		return &api.ErrorInfo{Kind: api.ErrorKindRuntime, Message: fmt.Sprintf("panic: %v", p.Value)}
	}

	msg := cleanMessage(err.Error())
	var list scanner.ErrorList
	if errors.As(err, &list) || isSyntaxMessage(msg) {
		return &api.ErrorInfo{Kind: api.ErrorKindSyntax, Message: msg}
	}
	return &api.ErrorInfo{Kind: api.ErrorKindCompile, Message: msg}
}

func isSyntaxMessage(msg string) bool {
	return strings.Contains(msg, "expected ") || strings.Contains(msg, "illegal character")
}

// cleanMessage drops the synthetic file name the interpreter prefixes to
// positions.
func cleanMessage(msg string) string {
	return positionPrefix.ReplaceAllString(strings.TrimSpace(msg), "")
}

// reportsResult decides whether the value of a snippet is worth reporting:
// the snippet must be a single expression and not a call to a printing
// function, whose return values are noise.
func reportsResult(body string) bool {
	expr, err := parser.ParseExpr(strings.TrimSpace(body))
	if err != nil {
		return false
	}
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return true
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return true
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return true
	}
	return pkg.Name != "fmt" && pkg.Name != "log"
}

func formatResult(v reflect.Value) string {
	if !v.IsValid() || v.Kind() == reflect.Func || !v.CanInterface() {
		return ""
	}
	return fmt.Sprint(v.Interface())
}
