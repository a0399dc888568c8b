// Package ingest loads complaint rows from the processed complaints CSV.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"complaintrag/internal/domain"
)

// Columns names the CSV header fields to read.
type Columns struct {
	ID      string
	Product string
	Text    string
}

// Stats counts what Load kept and why it skipped rows.
type Stats struct {
	Rows       int
	Kept       int
	Empty      int
	Duplicates int
}

// LoadFile opens path and reads it with Load.
func LoadFile(path string, cols Columns) ([]domain.Complaint, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Stats{}, domain.ConfigurationErrorf("complaints file %s not found", path)
		}
		return nil, Stats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f, cols)
}

// Load reads complaint rows. Whitespace in the narrative is collapsed, rows
// with an empty narrative are skipped, and exact duplicate rows are kept
// once. A missing column is a configuration error.
func Load(r io.Reader, cols Columns) ([]domain.Complaint, Stats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	idCol, ok1 := pos[cols.ID]
	productCol, ok2 := pos[cols.Product]
	textCol, ok3 := pos[cols.Text]
	if !ok1 || !ok2 || !ok3 {
		return nil, Stats{}, domain.ConfigurationErrorf("CSV is missing one of the columns %q, %q, %q", cols.ID, cols.Product, cols.Text)
	}
	need := max(idCol, productCol, textCol)

	var (
		out   []domain.Complaint
		stats Stats
		seen  = make(map[domain.Complaint]struct{})
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++
		if len(rec) <= need {
			stats.Empty++
			continue
		}
		c := domain.Complaint{
			ComplaintID: strings.TrimSpace(rec[idCol]),
			Product:     strings.TrimSpace(rec[productCol]),
			Narrative:   NormalizeSpace(rec[textCol]),
		}
		if c.Narrative == "" {
			stats.Empty++
			continue
		}
		if _, dup := seen[c]; dup {
			stats.Duplicates++
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	stats.Kept = len(out)
	return out, stats, nil
}

// NormalizeSpace trims text and collapses runs of spaces and tabs, keeping
// paragraph breaks so the chunker can still prefer them.
func NormalizeSpace(text string) string {
	paras := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	kept := paras[:0]
	for _, p := range paras {
		lines := strings.Split(p, "\n")
		parts := lines[:0]
		for _, l := range lines {
			if f := strings.Join(strings.Fields(l), " "); f != "" {
				parts = append(parts, f)
			}
		}
		if len(parts) > 0 {
			kept = append(kept, strings.Join(parts, "\n"))
		}
	}
	return strings.Join(kept, "\n\n")
}
