package common

import (
	"context"
	"errors"
	"math"
	"testing"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextCreatedEvent(id cdpruntime.ExecutionContextID, auxData string) *cdpruntime.EventExecutionContextCreated {
	return &cdpruntime.EventExecutionContextCreated{
		Context: &cdpruntime.ExecutionContextDescription{
			ID:      id,
			AuxData: easyjson.RawMessage(auxData),
		},
	}
}

func TestFrameEvaluateMainFrame(t *testing.T) {
	fm, sess := newTestFrameManager(t, singleFrameTree())

	sess.evalFn = func(params *cdpruntime.EvaluateParams, ret *cdpruntime.EvaluateReturns) error {
		assert.Equal(t, "Promise.resolve(2 + 3)", params.Expression)
		assert.True(t, params.ReturnByValue)
		assert.True(t, params.AwaitPromise)
		// The main frame evaluates in the session's implicit default
		// context.
		assert.Zero(t, params.ContextID)
		ret.Result = &cdpruntime.RemoteObject{Type: "number", Value: easyjson.RawMessage("5")}
		return nil
	}

	res, err := fm.MainFrame().Evaluate(context.Background(), "2 + 3")
	require.NoError(t, err)
	assert.Equal(t, float64(5), res)
}

func TestFrameEvaluateChildFrame(t *testing.T) {
	fm, sess := newTestFrameManager(t, singleFrameTree())
	fm.onFrameAttached("f1", "f0")
	frame := fm.Frame("f1")
	require.NotNil(t, frame)

	t.Run("no default context yet", func(t *testing.T) {
		_, err := frame.Evaluate(context.Background(), "1")
		require.ErrorIs(t, err, ErrContextNotReady)
	})

	fm.onExecutionContextCreated(contextCreatedEvent(7,
		`{"frameId":"f1","isDefault":true,"type":"default"}`))

	t.Run("default context known", func(t *testing.T) {
		sess.evalFn = func(params *cdpruntime.EvaluateParams, ret *cdpruntime.EvaluateReturns) error {
			assert.Equal(t, cdpruntime.ExecutionContextID(7), params.ContextID)
			ret.Result = &cdpruntime.RemoteObject{Type: "string", Value: easyjson.RawMessage(`"ok"`)}
			return nil
		}
		res, err := frame.Evaluate(context.Background(), "'ok'")
		require.NoError(t, err)
		assert.Equal(t, "ok", res)
	})

	t.Run("context destroyed", func(t *testing.T) {
		fm.onExecutionContextDestroyed(7)
		_, err := frame.Evaluate(context.Background(), "1")
		require.ErrorIs(t, err, ErrContextNotReady)
	})
}

func TestFrameEvaluateContextReplaced(t *testing.T) {
	fm, sess := newTestFrameManager(t, singleFrameTree())
	fm.onFrameAttached("f1", "f0")
	frame := fm.Frame("f1")

	// A navigation replaces the frame's default context; the registry
	// keeps the latest one.
	fm.onExecutionContextCreated(contextCreatedEvent(7,
		`{"frameId":"f1","isDefault":true,"type":"default"}`))
	fm.onExecutionContextCreated(contextCreatedEvent(8,
		`{"frameId":"f1","isDefault":true,"type":"default"}`))

	sess.evalFn = func(params *cdpruntime.EvaluateParams, ret *cdpruntime.EvaluateReturns) error {
		assert.Equal(t, cdpruntime.ExecutionContextID(8), params.ContextID)
		ret.Result = &cdpruntime.RemoteObject{Type: "undefined"}
		return nil
	}
	_, err := frame.Evaluate(context.Background(), "void 0")
	require.NoError(t, err)

	// Destroying the stale context must not affect the current one.
	fm.onExecutionContextDestroyed(7)
	_, err = frame.Evaluate(context.Background(), "void 0")
	require.NoError(t, err)
}

func TestFrameEvaluateNonDefaultContextIgnored(t *testing.T) {
	fm, _ := newTestFrameManager(t, singleFrameTree())
	fm.onFrameAttached("f1", "f0")
	frame := fm.Frame("f1")

	// Isolated worlds and contexts without a frame are not recorded.
	fm.onExecutionContextCreated(contextCreatedEvent(7,
		`{"frameId":"f1","isDefault":false,"type":"isolated"}`))
	fm.onExecutionContextCreated(contextCreatedEvent(8, `{"isDefault":true}`))

	_, err := frame.Evaluate(context.Background(), "1")
	require.ErrorIs(t, err, ErrContextNotReady)
}

func TestFrameEvaluateContextsCleared(t *testing.T) {
	fm, _ := newTestFrameManager(t, singleFrameTree())
	fm.onFrameAttached("f1", "f0")
	frame := fm.Frame("f1")

	fm.onExecutionContextCreated(contextCreatedEvent(7,
		`{"frameId":"f1","isDefault":true,"type":"default"}`))
	fm.onExecutionContextsCleared()

	_, err := frame.Evaluate(context.Background(), "1")
	require.ErrorIs(t, err, ErrContextNotReady)
}

func TestFrameEvaluateException(t *testing.T) {
	fm, sess := newTestFrameManager(t, singleFrameTree())

	sess.evalFn = func(params *cdpruntime.EvaluateParams, ret *cdpruntime.EvaluateReturns) error {
		ret.ExceptionDetails = &cdpruntime.ExceptionDetails{
			Text: "Uncaught",
			Exception: &cdpruntime.RemoteObject{
				Type:        "object",
				Subtype:     "error",
				Description: "ReferenceError: boom is not defined",
			},
		}
		return nil
	}

	res, err := fm.MainFrame().Evaluate(context.Background(), "boom()")
	require.Error(t, err)
	assert.Nil(t, res)

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "ReferenceError: boom is not defined", evalErr.Message)
}

func TestFrameEvaluateTransportError(t *testing.T) {
	fm, sess := newTestFrameManager(t, singleFrameTree())

	wantErr := errors.New("websocket: close 1006 (abnormal closure)")
	sess.evalFn = func(params *cdpruntime.EvaluateParams, ret *cdpruntime.EvaluateReturns) error {
		return wantErr
	}

	_, err := fm.MainFrame().Evaluate(context.Background(), "1")
	require.ErrorIs(t, err, wantErr)
}

func TestFrameEvaluateArguments(t *testing.T) {
	fm, sess := newTestFrameManager(t, singleFrameTree())

	sess.evalFn = func(params *cdpruntime.EvaluateParams, ret *cdpruntime.EvaluateReturns) error {
		assert.Equal(t,
			`Promise.resolve(((a, b) => a + b)(1, "two"))`,
			params.Expression)
		ret.Result = &cdpruntime.RemoteObject{Type: "string", Value: easyjson.RawMessage(`"1two"`)}
		return nil
	}

	res, err := fm.MainFrame().Evaluate(context.Background(), "(a, b) => a + b", 1, "two")
	require.NoError(t, err)
	assert.Equal(t, "1two", res)
}

func TestWrapEvalExpression(t *testing.T) {
	tests := []struct {
		name     string
		pageFunc string
		args     []interface{}
		want     string
	}{
		{
			name:     "expression",
			pageFunc: "document.title",
			want:     "Promise.resolve(document.title)",
		},
		{
			name:     "arrow function",
			pageFunc: "() => 1",
			want:     "Promise.resolve((() => 1)())",
		},
		{
			name:     "named arrow parameter",
			pageFunc: "x => x * 2",
			want:     "Promise.resolve((x => x * 2)())",
		},
		{
			name:     "function keyword",
			pageFunc: "function() { return 1 }",
			want:     "Promise.resolve((function() { return 1 })())",
		},
		{
			name:     "async function",
			pageFunc: "async () => fetch('/')",
			want:     "Promise.resolve((async () => fetch('/'))())",
		},
		{
			name:     "expression with args is called",
			pageFunc: "console.log",
			args:     []interface{}{"hi"},
			want:     `Promise.resolve((console.log)("hi"))`,
		},
		{
			name:     "multiple args",
			pageFunc: "(a, b) => [a, b]",
			args:     []interface{}{true, nil},
			want:     "Promise.resolve(((a, b) => [a, b])(true, null))",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wrapEvalExpression(tt.pageFunc, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertArgument(t *testing.T) {
	tests := []struct {
		name string
		arg  interface{}
		want string
	}{
		{"string", "a", `"a"`},
		{"int", 42, "42"},
		{"int64 in range", int64(1), "1"},
		{"int64 beyond int32", int64(math.MaxInt32) + 1, "2147483648n"},
		{"negative zero", math.Float64frombits(0 | (1 << 63)), "-0"},
		{"infinity", math.Inf(0), "Infinity"},
		{"negative infinity", math.Inf(-1), "-Infinity"},
		{"nan", math.NaN(), "NaN"},
		{"slice", []int{1, 2}, "[1,2]"},
		{"map", map[string]string{"k": "v"}, `{"k":"v"}`},
		{"nil", nil, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertArgument(tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unserializable", func(t *testing.T) {
		_, err := convertArgument(func() {})
		require.Error(t, err)
	})
}
