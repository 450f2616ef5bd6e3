// Package bogoheader inserts or replaces the verdict header on a passed-through
// message (spec §4.7, §9 Open Question 2). It locates an existing occurrence
// of the configured header name and rewrites its value in place, or inserts a
// new header line before the blank line separating headers from body when
// none exists — the same locate-or-insert-else-append shape as the teacher's
// injectPIIInstruction, generalized from JSON document fields to RFC822
// header lines.
package bogoheader

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"bogofilter-go/internal/scorer"
)

// DefaultHeaderName is used when config leaves spam_header_name unset.
const DefaultHeaderName = "X-Bogosity"

// Value formats the verdict header's value exactly per spec: "Yes|No|Unsure,
// tests=bogofilter, spamicity=0.xxxxxx".
func Value(verdict scorer.Verdict, spamicity float64) string {
	return fmt.Sprintf("%s, tests=bogofilter, spamicity=%0.6f", verdict.String(), spamicity)
}

// Rewrite copies msg to w, inserting or replacing headerName's value with
// value. It operates purely on header lines (folded continuation lines are
// passed through attached to the field that owns them) and streams the body
// through unmodified once the blank line separating headers from body is
// reached, so no second pass or full in-memory buffering of the message is
// needed.
func Rewrite(w io.Writer, msg io.Reader, headerName, value string) error {
	br := bufio.NewReader(msg)
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	replaced := false
	prefix := headerName + ":"
	headerLine := fmt.Sprintf("%s: %s\r\n", headerName, value)

	for {
		line, err := br.ReadString('\n')
		if line != "" {
			isBlank := line == "\r\n" || line == "\n"
			if isBlank && !replaced {
				if _, werr := bw.WriteString(headerLine); werr != nil {
					return werr
				}
				replaced = true
			}
			if strings.HasPrefix(strings.ToLower(line), strings.ToLower(prefix)) {
				if _, werr := bw.WriteString(headerLine); werr != nil {
					return werr
				}
				replaced = true
			} else if _, werr := bw.WriteString(line); werr != nil {
				return werr
			}
			if isBlank {
				break
			}
		}
		if err != nil {
			if err == io.EOF {
				// Header-only input with no blank line before EOF: still
				// insert the verdict header if it was never replaced.
				if !replaced {
					if _, werr := bw.WriteString(headerLine); werr != nil {
						return werr
					}
				}
				return nil
			}
			return err
		}
	}

	_, err := io.Copy(bw, br)
	return err
}
