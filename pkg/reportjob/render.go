package reportjob

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// Row is one line of report content gathered by the worker.
type Row struct {
	Label string
	Value string
}

// Renderer turns gathered rows into the download payload. Output bytes are
// opaque to the rest of the system.
type Renderer interface {
	Render(ctx context.Context, job Job, rows []Row) ([]byte, string, error)
}

type CSVRenderer struct{}

func (CSVRenderer) Render(ctx context.Context, job Job, rows []Row) ([]byte, string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"field", "value"}); err != nil {
		return nil, "", err
	}
	for _, row := range rows {
		if err := w.Write([]string{row.Label, row.Value}); err != nil {
			return nil, "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "text/csv", nil
}

// PDFRenderer emits a minimal single-page PDF: one content stream of text
// lines, uncompressed, with a correct xref table.
type PDFRenderer struct{}

func (PDFRenderer) Render(ctx context.Context, job Job, rows []Row) ([]byte, string, error) {
	lines := []string{job.Title, "Generated " + time.Now().UTC().Format(time.RFC3339), ""}
	for _, row := range rows {
		lines = append(lines, row.Label+": "+row.Value)
	}

	var content strings.Builder
	content.WriteString("BT /F1 11 Tf 50 780 Td 14 TL\n")
	for _, line := range lines {
		content.WriteString(fmt.Sprintf("(%s) Tj T*\n", escapePDFText(line)))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefStart)
	return buf.Bytes(), "application/pdf", nil
}

func escapePDFText(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)")
	return r.Replace(s)
}

// RendererFor returns the renderer for a format, defaulting to PDF.
func RendererFor(format string) Renderer {
	if format == FormatCSV {
		return CSVRenderer{}
	}
	return PDFRenderer{}
}
