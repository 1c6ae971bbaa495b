package wrapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePassthroughOnly(t *testing.T) {
	p, err := Parse([]string{"--headless", "--no-sandbox"})
	require.NoError(t, err)
	assert.False(t, p.ProxyEnabled)
	assert.Nil(t, p.Allow)
	assert.Equal(t, []string{"--headless", "--no-sandbox"}, p.PassthroughArgs)
}

func TestParseRemoteDebuggingPathSeparateValue(t *testing.T) {
	p, err := Parse([]string{"--headless", "--remote-debugging-path", "/tmp/cdp.sock", "--no-sandbox"})
	require.NoError(t, err)
	assert.True(t, p.ProxyEnabled)
	assert.Equal(t, "/tmp/cdp.sock", p.SocketPath)
	assert.Equal(t, []string{"--headless", "--no-sandbox"}, p.PassthroughArgs)
}

func TestParseRemoteDebuggingPathEqualsForm(t *testing.T) {
	p, err := Parse([]string{"--remote-debugging-path=/tmp/cdp.sock"})
	require.NoError(t, err)
	assert.True(t, p.ProxyEnabled)
	assert.Equal(t, "/tmp/cdp.sock", p.SocketPath)
	assert.Empty(t, p.PassthroughArgs)
}

func TestParseChromiumPath(t *testing.T) {
	p, err := Parse([]string{"--chromium-path=/opt/chromium/chrome", "--headless"})
	require.NoError(t, err)
	assert.Equal(t, "/opt/chromium/chrome", p.ChromiumBinary)
	assert.Equal(t, []string{"--headless"}, p.PassthroughArgs)
}

func TestParseAllowFlagsBuildList(t *testing.T) {
	p, err := Parse([]string{
		"--remote-debugging-path", "/tmp/cdp.sock",
		"--remote-debugging-allow", "Page.navigate",
		"--remote-debugging-allow-expression", `{"method":"Target.getTargets"}`,
	})
	require.NoError(t, err)
	require.NotNil(t, p.Allow)
	assert.True(t, p.Allow.Permits([]byte(`{"method":"Page.navigate"}`)))
	assert.True(t, p.Allow.Permits([]byte(`{"method":"Target.getTargets"}`)))
	assert.False(t, p.Allow.Permits([]byte(`{"method":"Page.reload"}`)))
}

func TestParseAllowWithoutPathIsAnError(t *testing.T) {
	_, err := Parse([]string{"--remote-debugging-allow", "Page.navigate"})
	assert.Error(t, err)
}

func TestParseMissingValueIsAnError(t *testing.T) {
	_, err := Parse([]string{"--remote-debugging-path"})
	assert.Error(t, err)
}

func TestParseInvalidAllowExpressionIsAnError(t *testing.T) {
	_, err := Parse([]string{"--remote-debugging-path", "/tmp/cdp.sock", "--remote-debugging-allow-expression", "not json"})
	assert.Error(t, err)
}

func TestParseVerboseFlagIsConsumedNotPassedThrough(t *testing.T) {
	p, err := Parse([]string{"-v", "--headless", "--remote-debugging-path", "/tmp/cdp.sock"})
	require.NoError(t, err)
	assert.True(t, p.Verbose)
	assert.Equal(t, []string{"--headless"}, p.PassthroughArgs)
}

func TestParseVerboseLongFormIsConsumedNotPassedThrough(t *testing.T) {
	p, err := Parse([]string{"--headless", "--verbose"})
	require.NoError(t, err)
	assert.True(t, p.Verbose)
	assert.Equal(t, []string{"--headless"}, p.PassthroughArgs)
}

func TestParseWithoutVerboseFlagDefaultsFalse(t *testing.T) {
	p, err := Parse([]string{"--headless"})
	require.NoError(t, err)
	assert.False(t, p.Verbose)
}
