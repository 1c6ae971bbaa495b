// Package cdppipe implements the CDP pipe wire framing (spec §4.1): UTF-8
// JSON objects separated by single NUL bytes, read and written over the fd
// pair Chromium expects at fds 3 and 4 in --remote-debugging-pipe mode.
//
// Grounded on the rod launcher's PipeWebSocket (bufio.Reader.ReadBytes over
// an os.Pipe, NUL-terminated writes) and on the original Python proxy's
// get_rdp_message, which reads byte-by-byte until a NUL and then parses JSON.
package cdppipe

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const delim = 0x00

// Codec frames and deframes CDP messages over one duplex stream. Decode and
// Encode may be called concurrently from different goroutines. Decode is for
// a single reader; Encode serializes concurrent callers with its own write
// lock, so whole frames never interleave on the wire.
type Codec struct {
	r    *bufio.Reader
	w    io.Writer
	wmu  sync.Mutex
	rbuf []byte
}

// New wraps rw (typically a net.UnixConn backing one end of the supervisor's
// socketpair) in a Codec.
func New(rw io.ReadWriter) *Codec {
	return &Codec{r: bufio.NewReader(rw), w: rw}
}

// Decode reads the next NUL-delimited frame and parses it as JSON. It
// returns io.EOF on a clean stream close between frames, and an error
// wrapping io.ErrUnexpectedEOF if the stream closes mid-frame — the pipe
// codec must not assume message boundaries align with read buffers, so any
// partial frame followed by EOF is a protocol framing error, never a silent
// truncation.
func (c *Codec) Decode() (json.RawMessage, error) {
	frame, err := c.r.ReadBytes(delim)
	if err != nil {
		if err == io.EOF {
			if len(frame) == 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("cdppipe: %w: truncated frame of %d bytes", io.ErrUnexpectedEOF, len(frame))
		}
		return nil, err
	}
	frame = frame[:len(frame)-1] // drop trailing NUL
	if len(frame) == 0 {
		return nil, fmt.Errorf("cdppipe: zero-length frame")
	}
	var raw json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("cdppipe: decoding frame: %w", err)
	}
	return raw, nil
}

// Encode serializes v as JSON, appends the frame delimiter, and writes the
// whole frame under a lock so no two writers interleave bytes on the wire.
func (c *Codec) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cdppipe: encoding frame: %w", err)
	}
	data = append(data, delim)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.w.Write(data)
	return err
}
