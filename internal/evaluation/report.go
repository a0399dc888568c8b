package evaluation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var reportColumns = []string{"Question", "Generated Answer", "Retrieved Sources", "Error", "Quality Score (1-5)", "Comments/Analysis"}

// WriteMarkdown renders the report as one markdown table.
func WriteMarkdown(w io.Writer, rep Report) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# RAG evaluation %s\n\n", rep.RunID)
	fmt.Fprintf(bw, "Started %s, %d questions, %d generation failures.\n\n",
		rep.StartedAt.Format("2006-01-02 15:04:05 MST"), len(rep.Rows), rep.Failed())

	fmt.Fprintf(bw, "| %s |\n", strings.Join(reportColumns, " | "))
	seps := make([]string, len(reportColumns))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(bw, "| %s |\n", strings.Join(seps, " | "))
	for _, r := range rep.Rows {
		cells := []string{
			r.Question,
			r.Answer,
			strings.Join(r.Sources, "\n---\n"),
			r.Error,
			r.QualityScore,
			r.Comments,
		}
		for i, c := range cells {
			cells[i] = cell(c)
		}
		fmt.Fprintf(bw, "| %s |\n", strings.Join(cells, " | "))
	}
	return bw.Flush()
}

// SaveMarkdown writes the report to path, creating its directory.
func SaveMarkdown(path string, rep Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteMarkdown(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// cell escapes text for a single markdown table cell.
func cell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}
