// Package reporter renders a classification's score into the R-table and
// summary statistics the driver can print or log (spec §4.7 pass-through,
// §6 thresh_stats). Its Stats type mirrors the teacher's metrics.Snapshot:
// a plain, JSON-serializable point-in-time view built once per message,
// not a live counter itself.
package reporter

import (
	"fmt"
	"sort"
	"strings"

	"bogofilter-go/internal/scorer"
)

// TokenRow is one line of the R-table: a token and the probability it
// contributed to the final spamicity (spec §3 Score is
// "consumed by reporter").
type TokenRow struct {
	Word string  `json:"word"`
	Prob float64 `json:"prob"`
}

// Stats is a point-in-time view of one message's classification, safe for
// JSON encoding.
type Stats struct {
	Algorithm string     `json:"algorithm"`
	Robn      int        `json:"robn"`
	Spamicity float64    `json:"spamicity"`
	Verdict   string     `json:"verdict"`
	RTable    []TokenRow `json:"rtable"`
}

// Snapshot builds a Stats from a completed Score.
func Snapshot(algorithm string, score scorer.Score) Stats {
	rows := make([]TokenRow, 0, len(score.Evidence))
	for _, e := range score.Evidence {
		rows = append(rows, TokenRow{Word: e.Word, Prob: e.Prob})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Word < rows[j].Word })

	return Stats{
		Algorithm: algorithm,
		Robn:      score.Robn,
		Spamicity: score.Spamicity,
		Verdict:   score.Verdict.String(),
		RTable:    rows,
	}
}

// FormatRTable renders the R-table the way thresh_stats output does: one
// "word  prob" line per contributing token, sorted for determinism.
func (s Stats) FormatRTable() string {
	var b strings.Builder
	for _, row := range s.RTable {
		fmt.Fprintf(&b, "%-30s %0.6f\n", row.Word, row.Prob)
	}
	return b.String()
}

// Summary renders the one-line classification summary (spec §7
// "Syslog output... carries one line per classified message containing
// verdict, spamicity, tag, and token count").
func (s Stats) Summary() string {
	return fmt.Sprintf("verdict=%s spamicity=%0.6f algorithm=%s tokens=%d",
		s.Verdict, s.Spamicity, s.Algorithm, s.Robn)
}
