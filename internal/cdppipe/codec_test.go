package cdppipe

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rwPipe struct {
	r io.Reader
	w io.Writer
}

func (p rwPipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p rwPipe) Write(b []byte) (int, error) { return p.w.Write(b) }

func TestCodecEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	codec := New(rwPipe{r: &buf, w: &buf})

	require.NoError(t, codec.Encode(map[string]any{"id": 1, "method": "Target.getTargets"}))
	require.NoError(t, codec.Encode(map[string]any{"id": 2, "method": "Browser.getVersion"}))

	first, err := codec.Decode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"method":"Target.getTargets"}`, string(first))

	second, err := codec.Decode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"method":"Browser.getVersion"}`, string(second))
}

func TestCodecDecodeCleanEOF(t *testing.T) {
	var buf bytes.Buffer
	codec := New(rwPipe{r: &buf, w: &buf})
	_, err := codec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCodecDecodeTruncatedFrame(t *testing.T) {
	buf := bytes.NewBufferString(`{"id":1`) // no trailing NUL, no closing brace
	codec := New(rwPipe{r: buf, w: io.Discard})
	_, err := codec.Decode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestCodecDecodeZeroLengthFrame(t *testing.T) {
	buf := bytes.NewBufferString("\x00{\"id\":1}\x00")
	codec := New(rwPipe{r: buf, w: io.Discard})
	_, err := codec.Decode()
	assert.Error(t, err)
}

func TestCodecDecodeInvalidJSON(t *testing.T) {
	buf := bytes.NewBufferString("not json\x00")
	codec := New(rwPipe{r: buf, w: io.Discard})
	_, err := codec.Decode()
	assert.Error(t, err)
}
