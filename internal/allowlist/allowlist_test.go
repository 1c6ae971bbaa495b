package allowlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodEquals(t *testing.T) {
	list := New(MethodEquals("Page.navigate"))
	assert.True(t, list.Permits([]byte(`{"id":1,"method":"Page.navigate","params":{}}`)))
	assert.False(t, list.Permits([]byte(`{"id":1,"method":"Page.reload","params":{}}`)))
}

func TestPermitsRejectsUnparseableJSON(t *testing.T) {
	list := New(MethodEquals("Page.navigate"))
	assert.False(t, list.Permits([]byte(`not json`)))
}

func TestPermitsShortCircuitsOnFirstMatch(t *testing.T) {
	laterCalled := false
	later := func(map[string]any) bool { laterCalled = true; return true }
	list := New(MethodEquals("A"), MethodEquals("B"), later)
	assert.True(t, list.Permits([]byte(`{"method":"B"}`)))
	assert.False(t, laterCalled, "predicates after the first match must not be evaluated")
}

func TestCompileExpressionMethodForm(t *testing.T) {
	pred, err := CompileExpression([]byte(`{"method":"Page.reload"}`))
	require.NoError(t, err)
	assert.True(t, pred(map[string]any{"method": "Page.reload"}))
	assert.False(t, pred(map[string]any{"method": "Page.navigate"}))
}

func TestCompileExpressionFieldEquals(t *testing.T) {
	pred, err := CompileExpression([]byte(`{"field":"params.targetId","eq":"abc"}`))
	require.NoError(t, err)
	msg := map[string]any{"params": map[string]any{"targetId": "abc"}}
	assert.True(t, pred(msg))
	msg["params"] = map[string]any{"targetId": "xyz"}
	assert.False(t, pred(msg))
}

func TestCompileExpressionFieldHas(t *testing.T) {
	pred, err := CompileExpression([]byte(`{"field":"params.url","has":true}`))
	require.NoError(t, err)
	assert.True(t, pred(map[string]any{"params": map[string]any{"url": "http://x"}}))
	assert.False(t, pred(map[string]any{"params": map[string]any{}}))
}

func TestCompileExpressionAll(t *testing.T) {
	pred, err := CompileExpression([]byte(`{"all":[{"method":"Page.navigate"},{"field":"params.url","has":true}]}`))
	require.NoError(t, err)
	assert.True(t, pred(map[string]any{"method": "Page.navigate", "params": map[string]any{"url": "http://x"}}))
	assert.False(t, pred(map[string]any{"method": "Page.navigate", "params": map[string]any{}}))
}

func TestCompileExpressionAny(t *testing.T) {
	pred, err := CompileExpression([]byte(`{"any":[{"method":"A"},{"method":"B"}]}`))
	require.NoError(t, err)
	assert.True(t, pred(map[string]any{"method": "A"}))
	assert.True(t, pred(map[string]any{"method": "B"}))
	assert.False(t, pred(map[string]any{"method": "C"}))
}

func TestCompileExpressionUnrecognized(t *testing.T) {
	_, err := CompileExpression([]byte(`{}`))
	assert.Error(t, err)
}

func TestCompileExpressionInvalidJSON(t *testing.T) {
	_, err := CompileExpression([]byte(`not json`))
	assert.Error(t, err)
}
