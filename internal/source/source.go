// Package source implements message sourcing (spec §2, §4.1): a
// MessageReader yields one message's byte range at a time. Two concrete
// readers are provided — a single-message stdin/file reader, and an mbox
// reader splitting on "^From " at column zero — grounded on
// original_source/bogofilter.c's message-boundary handling.
package source

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// MessageReader yields successive messages from an underlying stream.
// Next returns io.EOF once no further messages remain; the returned
// io.Reader is only valid until the next call to Next.
type MessageReader interface {
	Next() (io.Reader, error)
}

// Single wraps one reader as a single-message source (stdin or a
// single-file input, spec §2's "single-file" source).
type Single struct {
	r    io.Reader
	done bool
}

// NewSingle builds a MessageReader that yields r once.
func NewSingle(r io.Reader) *Single {
	return &Single{r: r}
}

// Next returns r on the first call and io.EOF thereafter.
func (s *Single) Next() (io.Reader, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.r, nil
}

// mboxBoundary is the line prefix that begins a new message in an mbox
// file (spec §4.1: "an mbox reader treats ^From  at column 0 as a message
// boundary").
const mboxBoundary = "From "

// Mbox splits an mbox-format stream into successive messages on "From "
// lines at the start of a line. It buffers one message's bytes at a time;
// the whole mbox need not fit in memory at once.
type Mbox struct {
	br      *bufio.Reader
	pending []byte // the "From " line that ended the previous message, if any
	atEOF   bool
}

// NewMbox builds an Mbox reader over r.
func NewMbox(r io.Reader) *Mbox {
	return &Mbox{br: bufio.NewReader(r)}
}

// Next returns the next message's bytes, or io.EOF when the stream is
// exhausted.
func (m *Mbox) Next() (io.Reader, error) {
	if m.atEOF && m.pending == nil {
		return nil, io.EOF
	}

	var buf bytes.Buffer
	if m.pending != nil {
		buf.Write(m.pending)
		m.pending = nil
	}

	sawAnyLine := buf.Len() > 0
	for {
		line, err := m.br.ReadString('\n')
		if len(line) > 0 {
			if sawAnyLine && strings.HasPrefix(line, mboxBoundary) {
				m.pending = []byte(line)
				return bytes.NewReader(buf.Bytes()), nil
			}
			buf.WriteString(line)
			sawAnyLine = true
		}
		if err != nil {
			m.atEOF = true
			if err == io.EOF {
				if buf.Len() == 0 {
					return nil, io.EOF
				}
				return bytes.NewReader(buf.Bytes()), nil
			}
			return nil, err
		}
	}
}
