package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"golang.org/x/net/context"
)

var functionSourceRegex = regexp.MustCompile(
	`^\s*(async\s+)?(function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`)

// Evaluate runs the given function or expression inside the frame's
// default execution context and returns its value by structural copy.
// The main frame evaluates in the connection's implicit default
// context; any other frame needs a default context to be known, and
// fails with ErrContextNotReady until one is. The frame and context
// IDs are captured at call time: a concurrent detach or navigation
// does not alter an in-flight call.
func (f *Frame) Evaluate(apiCtx context.Context, pageFunc string, args ...interface{}) (interface{}, error) {
	frameID := f.ID()
	f.manager.logger.Debugf("Frame:Evaluate", "fid:%v", frameID)

	expression, err := wrapEvalExpression(pageFunc, args)
	if err != nil {
		return nil, fmt.Errorf("serializing evaluation arguments in frame %q: %w", frameID, err)
	}

	action := cdpruntime.Evaluate(expression).
		WithReturnByValue(true).
		WithAwaitPromise(true)
	if !f.IsMainFrame() {
		ectxID, ok := f.manager.registry.lookup(frameID)
		if !ok {
			return nil, fmt.Errorf("evaluating in frame %q: %w", frameID, ErrContextNotReady)
		}
		action = action.WithContextID(ectxID)
	}

	remoteObject, exceptionDetails, err := action.Do(cdp.WithExecutor(apiCtx, f.manager.session))
	if err != nil {
		return nil, fmt.Errorf("evaluating expression in frame %q: %w", frameID, err)
	}
	if exceptionDetails != nil {
		return nil, &EvaluationError{Message: f.manager.formatter.Format(exceptionDetails)}
	}
	if remoteObject == nil {
		return nil, nil
	}

	res, err := parseRemoteObject(remoteObject)
	if err != nil {
		var merr *multiError
		if !errors.As(err, &merr) {
			return nil, fmt.Errorf("parsing evaluation result in frame %q: %w", frameID, err)
		}
		// Oversized objects parse partially; log what was lost and
		// return the rest.
		f.manager.logger.Warnf("Frame:Evaluate", "fid:%v %s", frameID, merr)
	}
	return res, nil
}

// wrapEvalExpression serializes a page function and its arguments into
// one self-contained expression. The Promise.resolve wrapper
// normalizes synchronous and promise-returning expressions to an
// awaited promise.
func wrapEvalExpression(pageFunc string, args []interface{}) (string, error) {
	serialized := make([]string, 0, len(args))
	for _, arg := range args {
		s, err := convertArgument(arg)
		if err != nil {
			return "", err
		}
		serialized = append(serialized, s)
	}
	if len(args) > 0 || functionSourceRegex.MatchString(pageFunc) {
		return fmt.Sprintf("Promise.resolve((%s)(%s))",
			pageFunc, strings.Join(serialized, ", ")), nil
	}
	return fmt.Sprintf("Promise.resolve(%s)", pageFunc), nil
}

// convertArgument renders one argument as a JavaScript literal.
// Values JSON cannot carry become the matching JS tokens.
func convertArgument(arg interface{}) (string, error) {
	switch a := arg.(type) {
	case int64:
		if a > math.MaxInt32 || a < math.MinInt32 {
			return fmt.Sprintf("%dn", a), nil
		}
	case float64:
		switch {
		case a == math.Float64frombits(0|(1<<63)):
			return "-0", nil
		case a == math.Inf(0):
			return "Infinity", nil
		case a == math.Inf(-1):
			return "-Infinity", nil
		case math.IsNaN(a):
			return "NaN", nil
		}
	}
	b, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("converting argument %#v: %w", arg, err)
	}
	return string(b), nil
}
