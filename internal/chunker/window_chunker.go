package chunker

import (
	"errors"
	"strings"

	"complaintrag/internal/domain"
)

// boundaries lists the preferred cut points, strongest first. A cut is placed
// right after the separator so it stays with the excerpt it ends.
var boundaries = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

// WindowChunker splits narratives into windows of at most size runes.
// Consecutive windows of one narrative share exactly overlap runes.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be > 0")
	}
	if overlap < 0 || overlap >= size {
		return nil, errors.New("chunk overlap must be >= 0 and < chunk size")
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunk splits every row's narrative and pairs each excerpt with a record
// carrying the row's complaint id and product. Rows with empty narratives
// contribute nothing.
func (c *WindowChunker) Chunk(rows []domain.Complaint) ([]string, []domain.MetadataRecord) {
	var texts []string
	var records []domain.MetadataRecord
	for _, row := range rows {
		for _, text := range c.Split(row.Narrative) {
			texts = append(texts, text)
			records = append(records, domain.MetadataRecord{
				ComplaintID: row.ComplaintID,
				Product:     row.Product,
				Text:        text,
			})
		}
	}
	return texts, records
}

// Split returns the overlapping windows of a single text.
func (c *WindowChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}
	var out []string
	start := 0
	for {
		end := start + c.size
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		end = c.cut(runes, start, end)
		out = append(out, string(runes[start:end]))
		start = end - c.overlap
	}
	return out
}

// cut picks the end of the window starting at start. It must leave the
// window longer than the overlap so the next window advances.
func (c *WindowChunker) cut(runes []rune, start, maxEnd int) int {
	minEnd := start + c.size/2
	if minEnd <= start+c.overlap {
		minEnd = start + c.overlap + 1
	}
	for _, sep := range boundaries {
		for p := maxEnd; p >= minEnd; p-- {
			if p-len(sep) < start {
				break
			}
			if hasSuffixAt(runes, p, sep) {
				return p
			}
		}
	}
	return maxEnd
}

func hasSuffixAt(runes []rune, end int, sep []rune) bool {
	begin := end - len(sep)
	for i, r := range sep {
		if runes[begin+i] != r {
			return false
		}
	}
	return true
}
