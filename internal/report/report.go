// Package report writes subject screening results.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KyungWonPark/DiscountGLM/internal/design"
)

// Output file names
const (
	StatusCSV     = "subject_status.csv"
	StatusXLSX    = "subject_status.xlsx"
	GoodSubjects  = "good_subids.txt"
	statusSheet   = "status"
	defaultSheet1 = "Sheet1"
)

var header = []string{"sub_id", "include", "reason"}

func row(s design.Status) []string {
	return []string{s.SubID, strconv.FormatBool(s.Include), s.Reason}
}

// Paths lists the files written by Write
type Paths struct {
	CSV          string
	Workbook     string
	GoodSubjects string
}

// Write saves the statuses as CSV and xlsx tables and the included subject
// ids, one per line, into dir
func Write(dir string, statuses []design.Status) (*Paths, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	p := &Paths{
		CSV:          filepath.Join(dir, StatusCSV),
		Workbook:     filepath.Join(dir, StatusXLSX),
		GoodSubjects: filepath.Join(dir, GoodSubjects),
	}

	if err := WriteCSV(p.CSV, statuses); err != nil {
		return nil, err
	}
	if err := WriteWorkbook(p.Workbook, statuses); err != nil {
		return nil, err
	}
	if err := WriteGoodSubjects(p.GoodSubjects, statuses); err != nil {
		return nil, err
	}

	return p, nil
}

// WriteCSV saves the status table as CSV
func WriteCSV(path string, statuses []design.Status) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, s := range statuses {
		if err := w.Write(row(s)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteWorkbook saves the status table as a single-sheet xlsx workbook
func WriteWorkbook(path string, statuses []design.Status) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet1, statusSheet); err != nil {
		return err
	}

	titles := make([]any, len(header))
	for i, h := range header {
		titles[i] = h
	}
	if err := f.SetSheetRow(statusSheet, "A1", &titles); err != nil {
		return err
	}

	for i, s := range statuses {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{s.SubID, s.Include, s.Reason}
		if err := f.SetSheetRow(statusSheet, cell, &values); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteGoodSubjects saves the ids of included subjects, one per line
func WriteGoodSubjects(path string, statuses []design.Status) error {
	var b strings.Builder
	for _, s := range statuses {
		if s.Include {
			b.WriteString(s.SubID)
			b.WriteByte('\n')
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
