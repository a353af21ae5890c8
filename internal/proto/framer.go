package proto

import (
	"bufio"
	"io"
	"strings"
)

// Framer splits a byte stream into newline-delimited protocol messages.
// Partial messages are buffered across reads, so multi-byte UTF-8 text that
// straddles a read boundary is reassembled before it is surfaced.
type Framer struct {
	r *bufio.Reader
}

// NewFramer wraps the reader side of a connection.
func NewFramer(r io.Reader) *Framer {
	return &Framer{r: bufio.NewReader(r)}
}

// Next returns the next complete message, without its trailing newline.
// It returns io.EOF when the stream ends cleanly; a partial trailing
// message with no terminator is discarded. Any other error is a transport
// failure.
func (f *Framer) Next() (string, error) {
	line, err := f.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}
