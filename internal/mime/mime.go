// Package mime tracks MIME nesting, content-type, and transfer-encoding
// state for the lexer (spec §4.2).
//
// A Machine owns a stack of parts. Each multipart part remembers its own
// boundary string; encountering a matching "--boundary" line pops back to
// that part's nesting level and starts a new sibling part, and "--boundary--"
// closes the part entirely. A message/* part, on seeing the end of its own
// headers (an EMPTY token from the lexer), pushes a child part representing
// the embedded message's headers — mirroring a nested mail-within-mail body.
//
// Malformed or unrecognized Content-Type values never produce an error: the
// part simply falls back to State.Other, and its body lines are dropped by
// the lexer while its headers are still lexed normally (spec §4.2
// Failure semantics).
package mime

import (
	"strings"

	stdmime "mime"

	"golang.org/x/net/html/charset"
)

// State is a MIME part's current body-handling mode.
type State int

// Part states, matching spec §4.2's state machine.
const (
	StateTop State = iota
	StateTextPlain
	StateTextHTML
	StateMultipart
	StateMessage
	StateOther
)

func (s State) String() string {
	switch s {
	case StateTop:
		return "TOP"
	case StateTextPlain:
		return "TEXT_PLAIN"
	case StateTextHTML:
		return "TEXT_HTML"
	case StateMultipart:
		return "MULTIPART"
	case StateMessage:
		return "MESSAGE"
	default:
		return "OTHER"
	}
}

type frame struct {
	state            State
	boundary         string // only meaningful when state == StateMultipart
	transferEncoding string
	charset          string // Content-Type's charset param, lower-cased ("" if none given)
}

// Machine is the MIME nesting state machine. The zero value is not usable;
// construct with New.
type Machine struct {
	stack []frame
}

// New creates a Machine positioned at the message's top-level part.
func New() *Machine {
	return &Machine{stack: []frame{{state: StateTop}}}
}

// State reports the current (innermost) part's state.
func (m *Machine) State() State {
	return m.top().state
}

// TransferEncoding reports the current part's Content-Transfer-Encoding, or
// "" if none was seen.
func (m *Machine) TransferEncoding() string {
	return m.top().transferEncoding
}

// Depth reports the current nesting depth (1 at the top level).
func (m *Machine) Depth() int { return len(m.stack) }

func (m *Machine) top() *frame { return &m.stack[len(m.stack)-1] }

// SetContentType updates the current part's state from a raw Content-Type
// header value. Unparseable or unrecognized values fall back to
// StateOther rather than failing (spec §4.2 Failure semantics).
func (m *Machine) SetContentType(value string) {
	top := m.top()

	mediaType, params, err := stdmime.ParseMediaType(value)
	if err != nil || mediaType == "" {
		top.state = StateOther
		return
	}
	mediaType = strings.ToLower(mediaType)
	top.charset = strings.ToLower(params["charset"])

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		top.state = StateMultipart
		top.boundary = params["boundary"]
		if top.boundary == "" {
			// A multipart part with no boundary can never be split into
			// children; treat it as opaque rather than pretending we can
			// find sub-parts that don't exist.
			top.state = StateOther
		}
	case mediaType == "text/plain":
		top.state = StateTextPlain
	case mediaType == "text/html":
		top.state = StateTextHTML
	case strings.HasPrefix(mediaType, "message/"):
		top.state = StateMessage
	default:
		top.state = StateOther
	}
}

// SetTransferEncoding records the current part's
// Content-Transfer-Encoding value, case-folded and trimmed.
func (m *Machine) SetTransferEncoding(value string) {
	m.top().transferEncoding = strings.ToLower(strings.TrimSpace(value))
}

// OnEmptyLine signals the end of the current part's headers. If the current
// part is message/*, a child part is pushed to represent the embedded
// message's own headers+body (spec §4.2: "on receipt, if current MIME part
// is message/*, a child part is pushed").
func (m *Machine) OnEmptyLine() {
	if m.top().state == StateMessage {
		m.stack = append(m.stack, frame{state: StateTop})
	}
}

// MatchBoundary checks line (a body line, without its trailing newline)
// against every multipart boundary currently on the stack, innermost first.
// On a match, the stack is trimmed back to (and including, unless final) the
// matching multipart frame, and — unless this is the final "--boundary--"
// delimiter — a new sibling part is pushed to receive the next part's
// headers. matched reports whether line was a boundary line at all; final
// reports whether it was the closing "--boundary--" form.
func (m *Machine) MatchBoundary(line string) (matched, final bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(trimmed, "--") {
		return false, false
	}
	body := trimmed[2:]
	isFinal := strings.HasSuffix(body, "--")
	candidate := body
	if isFinal {
		candidate = body[:len(body)-2]
	}

	for i := len(m.stack) - 1; i >= 0; i-- {
		f := m.stack[i]
		if f.state != StateMultipart || f.boundary == "" {
			continue
		}
		if f.boundary != candidate {
			continue
		}
		// Drop any deeper (child-part) frames pushed since this multipart
		// frame was opened.
		m.stack = m.stack[:i+1]
		if isFinal {
			m.popOrTop()
		} else {
			m.stack = append(m.stack, frame{state: StateTop})
		}
		return true, isFinal
	}
	return false, false
}

// DecodeBody transcodes one body line's bytes to UTF-8 according to the
// current part's Content-Type charset parameter, falling back to
// fallbackCharset when the part carried none. Lookup and conversion go
// through golang.org/x/net/html/charset's content-sniffing determination —
// the same routine net/http uses to decode HTML responses of unspecified
// encoding — which itself resolves charset names via
// golang.org/x/text/encoding/htmlindex. us-ascii and utf-8 (the common
// case) are passed through untouched. Any lookup or decode failure falls
// back to the raw bytes rather than erroring (spec §4.2 Failure semantics:
// malformed input is never fatal).
func (m *Machine) DecodeBody(line []byte, fallbackCharset string) []byte {
	cs := m.top().charset
	if cs == "" {
		cs = strings.ToLower(fallbackCharset)
	}
	if cs == "" || cs == "utf-8" || cs == "us-ascii" || cs == "ascii" {
		return line
	}

	enc, _, _ := charset.DetermineEncoding(line, "text/plain; charset="+cs)
	if enc == nil {
		return line
	}
	decoded, err := enc.NewDecoder().Bytes(line)
	if err != nil {
		return line
	}
	return decoded
}

// popOrTop pops the current frame, unless it is the only (top-level) frame.
func (m *Machine) popOrTop() {
	if len(m.stack) > 1 {
		m.stack = m.stack[:len(m.stack)-1]
	}
}
