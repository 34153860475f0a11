package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// WeekGrid is a timetable laid out as time slots against teaching days.
// Cells hold the display lines for one day/slot intersection.
type WeekGrid struct {
	Title string
	Days  []string
	Slots []string
	Cells map[string]map[string][]string
}

// TimetablePDFExporter renders a week grid onto landscape A4 pages.
type TimetablePDFExporter struct{}

// NewTimetablePDFExporter constructs a timetable PDF exporter.
func NewTimetablePDFExporter() *TimetablePDFExporter {
	return &TimetablePDFExporter{}
}

// RenderGrid creates the PDF document. Slots become rows, days become
// columns; overlong cell content is truncated to keep the grid readable.
func (e *TimetablePDFExporter) RenderGrid(grid WeekGrid) ([]byte, error) {
	if len(grid.Days) == 0 || len(grid.Slots) == 0 {
		return nil, fmt.Errorf("week grid requires days and slots")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.AddPage()

	if grid.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(grid.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	const slotColWidth = 30.0
	dayColWidth := (277.0 - slotColWidth) / float64(len(grid.Days))

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(slotColWidth, 8, "Time", "1", 0, "C", false, 0, "")
	for _, day := range grid.Days {
		pdf.CellFormat(dayColWidth, 8, day, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, slot := range grid.Slots {
		height := e.rowHeight(grid, slot)
		pdf.CellFormat(slotColWidth, height, slot, "1", 0, "C", false, 0, "")
		x := pdf.GetX()
		y := pdf.GetY()
		for _, day := range grid.Days {
			lines := grid.Cells[day][slot]
			pdf.Rect(x, y, dayColWidth, height, "D")
			pdf.SetXY(x+1, y+1)
			for _, line := range lines {
				pdf.CellFormat(dayColWidth-2, 4, truncateLine(line, int(dayColWidth/1.8)), "", 2, "L", false, 0, "")
			}
			x += dayColWidth
			pdf.SetXY(x, y)
		}
		pdf.Ln(height)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render timetable pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *TimetablePDFExporter) rowHeight(grid WeekGrid, slot string) float64 {
	maxLines := 1
	for _, day := range grid.Days {
		if n := len(grid.Cells[day][slot]); n > maxLines {
			maxLines = n
		}
	}
	height := float64(maxLines)*4 + 2
	if height < 8 {
		height = 8
	}
	return height
}

func truncateLine(line string, max int) string {
	if max < 8 {
		max = 8
	}
	if len(line) <= max {
		return line
	}
	return line[:max-3] + "..."
}
