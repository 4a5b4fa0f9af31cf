package library

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// Table is the full collection of Records for one session. It is immutable
// by convention: enrichment produces a new Table via WithGenres rather than
// mutating rows in place, so a fingerprint identifies its content for the
// lifetime of the value.
type Table struct {
	Rows        []Record
	fingerprint string
}

// NewTable builds a table over rows and computes its content fingerprint.
func NewTable(rows []Record) *Table {
	t := &Table{Rows: rows}
	t.fingerprint = computeFingerprint(t)
	return t
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Fingerprint returns a stable SHA-256 hex digest of the table content.
// Two tables with identical rows share a fingerprint, which makes computed
// aggregates safe to memoize against it.
func (t *Table) Fingerprint() string {
	return t.fingerprint
}

// WithGenres returns a new table with genre labels attached to the records
// whose BookID appears in the mapping. Identifiers absent from the mapping
// and mappings to empty lists leave the record untouched. The receiver is
// never modified.
func (t *Table) WithGenres(genres map[string][]string) *Table {
	rows := make([]Record, len(t.Rows))
	copy(rows, t.Rows)
	for i := range rows {
		if g, ok := genres[rows[i].BookID]; ok && len(g) > 0 {
			rows[i].Genres = append([]string(nil), g...)
		}
	}
	return NewTable(rows)
}

// HasGenres reports whether any record carries a genre label.
func (t *Table) HasGenres() bool {
	for i := range t.Rows {
		if len(t.Rows[i].Genres) > 0 {
			return true
		}
	}
	return false
}

func computeFingerprint(t *Table) string {
	var buf bytes.Buffer
	// The canonical CSV serialization doubles as hashing input, so the
	// fingerprint changes exactly when the exported content would.
	if err := Write(&buf, t); err != nil {
		// Write to a bytes.Buffer cannot fail; keep the fingerprint
		// deterministic regardless.
		return ""
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
