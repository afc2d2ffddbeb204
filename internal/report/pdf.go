// Package report renders a PDF report of one extraction run.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/amrheing/mytools-gps-suite/internal/domain"
)

type ReportService struct{}

func NewReportService() *ReportService {
	return &ReportService{}
}

// Generate writes a PDF listing the run's output files and its summary text.
func (s *ReportService) Generate(w io.Writer, directory string, files []domain.ExtractedFile, summary string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("GPX extraction %s", directory), false)
	pdf.SetAuthor("gps-suite", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "GPX Extraction Report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 6, fmt.Sprintf("Output directory: %s", directory))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "Extracted files")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	if len(files) == 0 {
		pdf.MultiCell(0, 6, "(none)", "", "L", false)
	}
	for _, file := range files {
		line := fmt.Sprintf("- %s  [%s, %s]", file.Name, file.Type, formatSize(file.Size))
		pdf.MultiCell(0, 6, line, "", "L", false)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(10)

	pdf.SetFont("Courier", "", 9)
	for _, line := range strings.Split(strings.TrimSpace(summary), "\n") {
		pdf.MultiCell(0, 5, line, "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf report: %w", err)
	}
	return nil
}

func formatSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	}
}
