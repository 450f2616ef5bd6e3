// Package lexer tokenizes a mail message (headers and MIME bodies) into a
// stream of typed tokens (spec §4.2).
//
// Unlike the original C implementation's hand-written character classifier
// (a flex-generated DFA over individual bytes), this lexer works line by
// line and uses regular expressions for the token/IP-address shape tests —
// the same pattern-matching idiom the rest of this codebase leans on for
// text scanning. The result is byte-for-byte deterministic for a given
// input and configuration (spec P8), which is all the contract requires.
package lexer

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"bogofilter-go/internal/mime"
)

// Class identifies the kind of token a Lexer emits.
type Class int

// Token classes, matching spec §4.2.
const (
	ClassNone Class = iota
	ClassToken
	ClassIPAddr
	ClassEmpty
	ClassBoundary
	ClassMsgCountLine
	ClassBogoLexLine
)

func (c Class) String() string {
	switch c {
	case ClassToken:
		return "TOKEN"
	case ClassIPAddr:
		return "IPADDR"
	case ClassEmpty:
		return "EMPTY"
	case ClassBoundary:
		return "BOUNDARY"
	case ClassMsgCountLine:
		return "MSG_COUNT_LINE"
	case ClassBogoLexLine:
		return "BOGO_LEX_LINE"
	default:
		return "NONE"
	}
}

// MaxTokenLen is the longest token the lexer ever emits; longer tokens are
// silently dropped (spec §4.2).
const MaxTokenLen = 30

// headerTags maps a recognized header field name (lower-cased, no colon) to
// the prefix tag concatenated onto tokens from that field's value.
// Unrecognized fields produce no tag (spec §4.2).
var headerTags = map[string]string{
	"to":          "to:",
	"from":        "from:",
	"return-path": "rtrn:",
	"subject":     "subj:",
}

// ipPattern matches a dotted-quad shape where each segment is one or more
// decimal digits — deliberately not clamped to 0-255, since the
// block_on_subnets masking step (spec §4.2, P10) is exactly what turns an
// out-of-range "decimal IP" like 1537.65793.131329.262657 back into a real
// address.
var ipPattern = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+){3}$`)

// commentOpen / commentClose delimit an HTML comment; comments may span
// multiple lines.
const (
	commentOpen  = "<!--"
	commentClose = "-->"
)

// Config selects the lexer's run-time behavior (spec §6).
type Config struct {
	// CasefoldLower lower-cases every emitted byte when true (identity
	// mapping otherwise). Selected once per run.
	CasefoldLower bool

	// ReplaceNonASCII replaces bytes >= 0x80 with '?' when true.
	ReplaceNonASCII bool

	// BlockOnSubnets enables IP address masking/unmasking (spec §4.2, P10).
	BlockOnSubnets bool

	// TagHeaderLines enables header-field tag prefixing. When false, no
	// header field produces a tag, matching unknown-field behavior for all
	// fields.
	TagHeaderLines bool

	// KillHTMLComments strips HTML comments (and their contents) entirely.
	KillHTMLComments bool

	// CountHTMLComments, when > 0, counts up to that many HTML comments
	// instead of killing or scoring them (contents are still stripped).
	CountHTMLComments int

	// ScoreHTMLComments treats HTML comments as ordinary text instead of
	// stripping them. Takes precedence over KillHTMLComments/CountHTMLComments
	// when set.
	ScoreHTMLComments bool

	// CharsetDefault names the charset used to decode a body part's bytes
	// when its own Content-Type carries no charset parameter (spec §6
	// charset_default). "us-ascii" and "utf-8" are no-ops.
	CharsetDefault string
}

// pending is one already-decided token waiting to be returned from Next.
type pending struct {
	class Class
	text  string
}

// Lexer tokenizes one mail message read from an io.Reader. A Lexer is
// single-use: construct a new one per message.
type Lexer struct {
	cfg  Config
	mime *mime.Machine
	r    *bufio.Reader

	inHeader bool
	headerNm string
	headerVl strings.Builder

	inComment       bool
	commentsCounted int

	queue []pending
	eof   bool
}

// New creates a Lexer reading from r with the given configuration.
func New(r io.Reader, cfg Config) *Lexer {
	return &Lexer{
		cfg:      cfg,
		mime:     mime.New(),
		r:        bufio.NewReader(r),
		inHeader: true,
	}
}

// MIMEState exposes the lexer's current MIME part state, mainly for tests.
// OTHER-part body lines are dropped inside the lexer itself.
func (lx *Lexer) MIMEState() mime.State { return lx.mime.State() }

// Next returns the next token, or (ClassNone, nil) at end of message.
func (lx *Lexer) Next() (Class, []byte) {
	for len(lx.queue) == 0 {
		if !lx.fillQueue() {
			return ClassNone, nil
		}
	}
	t := lx.queue[0]
	lx.queue = lx.queue[1:]
	return t.class, []byte(t.text)
}

// fillQueue reads and processes one logical line, appending zero or more
// tokens to lx.queue. It returns false once there is nothing left to read
// and no pending field to flush.
func (lx *Lexer) fillQueue() bool {
	line, err := lx.r.ReadString('\n')
	if len(line) == 0 && err != nil {
		if lx.inHeader && lx.headerNm != "" {
			lx.flushHeaderField()
			return len(lx.queue) > 0
		}
		return false
	}

	raw := strings.TrimRight(line, "\r\n")

	// Special non-mail line formats used by the wordlist restore path and
	// the bogolexer debug tool; recognized regardless of header/body mode
	// since they never appear inside real mail content.
	switch {
	case strings.HasPrefix(raw, ".MSG_COUNT") || strings.HasPrefix(raw, ".ROBX"):
		lx.queue = append(lx.queue, pending{class: ClassMsgCountLine, text: raw})
		return true
	case strings.HasPrefix(raw, "#BOGOLEX#"):
		lx.queue = append(lx.queue, pending{class: ClassBogoLexLine, text: raw})
		return true
	}

	if lx.inHeader {
		lx.processHeaderLine(raw)
	} else {
		lx.processBodyLine(raw)
	}
	return true
}

// processHeaderLine implements RFC 822 header folding: a line beginning
// with whitespace continues the previous field; a blank line ends the
// header block.
func (lx *Lexer) processHeaderLine(raw string) {
	if raw == "" {
		lx.flushHeaderField()
		lx.queue = append(lx.queue, pending{class: ClassEmpty})
		depth := lx.mime.Depth()
		lx.mime.OnEmptyLine()
		// message/* parts push a child frame whose own headers follow
		// immediately; everything else switches to body mode.
		lx.inHeader = lx.mime.Depth() > depth
		return
	}

	if (raw[0] == ' ' || raw[0] == '\t') && lx.headerNm != "" {
		lx.headerVl.WriteByte(' ')
		lx.headerVl.WriteString(strings.TrimSpace(raw))
		return
	}

	lx.flushHeaderField()

	name, value, ok := strings.Cut(raw, ":")
	if !ok {
		// Malformed header line; treat the whole thing as an unnamed field
		// so at least its words are tokenized (spec: malformed input never
		// fails the lexer).
		lx.headerNm = ""
		lx.headerVl.WriteString(raw)
		return
	}
	lx.headerNm = strings.ToLower(strings.TrimSpace(name))
	lx.headerVl.WriteString(strings.TrimSpace(value))
}

// flushHeaderField tokenizes the currently accumulated header field (after
// folding) and resets field-accumulation state.
func (lx *Lexer) flushHeaderField() {
	name := lx.headerNm
	value := lx.headerVl.String()
	lx.headerNm = ""
	lx.headerVl.Reset()

	if name == "" && value == "" {
		return
	}

	switch name {
	case "content-type":
		lx.mime.SetContentType(value)
	case "content-transfer-encoding":
		lx.mime.SetTransferEncoding(value)
	}

	tag := ""
	if lx.cfg.TagHeaderLines {
		tag = headerTags[name]
	}
	lx.emitWords(value, tag)
}

// processBodyLine handles one line of body content according to the
// current MIME state.
func (lx *Lexer) processBodyLine(raw string) {
	if matched, _ := lx.mime.MatchBoundary(raw); matched {
		// Consumed: advances MIME state, no token is returned for it. A new
		// sibling part (if any) starts with its own header block.
		lx.inHeader = lx.mime.State() == mime.StateTop
		return
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "--") {
		// Boundary-shaped but didn't match any active boundary: returned to
		// the caller rather than consumed.
		lx.queue = append(lx.queue, pending{class: ClassBoundary, text: raw})
		return
	}

	switch lx.mime.State() {
	case mime.StateOther:
		return // body dropped; headers of this part were already lexed
	default:
		decoded := lx.mime.DecodeBody([]byte(raw), lx.cfg.CharsetDefault)
		lx.emitWords(string(decoded), "")
	}
}

// emitWords splits text on whitespace and emits one token (or IPADDR
// expansion) per word, applying the tag prefix, casefold, length cap, and
// HTML-comment policy.
func (lx *Lexer) emitWords(text, tag string) {
	text = lx.filterHTMLComments(text)
	for _, field := range strings.Fields(text) {
		word := strings.TrimRight(field, " ")
		word = strings.TrimSuffix(word, ":")
		if word == "" {
			continue
		}

		if ipPattern.MatchString(word) {
			lx.emitIPAddr(word)
			continue
		}

		word = lx.casefold(word)
		tagged := tag + word
		if len(tagged) > MaxTokenLen {
			continue
		}
		lx.queue = append(lx.queue, pending{class: ClassToken, text: tagged})
	}
}

// emitIPAddr handles one dotted-quad word: raw pass-through, or the
// block_on_subnets masked/expanded form (spec §4.2, P10).
func (lx *Lexer) emitIPAddr(word string) {
	if !lx.cfg.BlockOnSubnets {
		lx.queue = append(lx.queue, pending{class: ClassIPAddr, text: word})
		return
	}

	parts := strings.Split(word, ".")
	masked := make([]string, len(parts))
	for i, p := range parts {
		masked[i] = octetMask(p)
	}

	for n := len(masked); n >= 2; n-- {
		tok := "url:" + strings.Join(masked[:n], ".")
		lx.queue = append(lx.queue, pending{class: ClassIPAddr, text: tok})
	}
}

// octetMask parses a decimal segment and masks it to a single byte
// (x & 0xff), unmasking the HTML-numeric-IP evasion technique.
func octetMask(segment string) string {
	var v uint64
	for _, c := range segment {
		v = v*10 + uint64(c-'0')
	}
	return itoa(v & 0xff)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// casefold applies the selected casefold table: lowercase or identity, plus
// an optional non-ASCII -> '?' replacement pass.
func (lx *Lexer) casefold(s string) string {
	b := []byte(s)
	for i, c := range b {
		if lx.cfg.ReplaceNonASCII && c >= 0x80 {
			b[i] = '?'
			continue
		}
		if lx.cfg.CasefoldLower && c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

// filterHTMLComments applies the configured HTML-comment policy to text,
// tracking comment state across lines via lx.inComment.
func (lx *Lexer) filterHTMLComments(text string) string {
	if lx.cfg.ScoreHTMLComments {
		return text
	}

	var out strings.Builder
	rest := text
	for {
		if lx.inComment {
			idx := strings.Index(rest, commentClose)
			if idx < 0 {
				return out.String() // whole remainder is inside the comment
			}
			rest = rest[idx+len(commentClose):]
			lx.inComment = false
			if lx.cfg.CountHTMLComments > 0 && lx.commentsCounted < lx.cfg.CountHTMLComments {
				lx.commentsCounted++
			}
			continue
		}
		idx := strings.Index(rest, commentOpen)
		if idx < 0 {
			out.WriteString(rest)
			return out.String()
		}
		out.WriteString(rest[:idx])
		rest = rest[idx+len(commentOpen):]
		lx.inComment = true
	}
}
