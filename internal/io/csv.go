package io

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gonum/matrix/mat64"
)

// Table is a delimited text file held in memory
type Table struct {
	Header  []string
	Records [][]string
}

// Index returns the position of a header column, or -1
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// ReadTable reads a delimited file with a header row
func ReadTable(path string, comma rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse %s: empty file", path)
	}

	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	// utf-8 BOM from spreadsheet exports
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	return &Table{Header: header, Records: records[1:]}, nil
}

// Mat64toCSV saves Mat64 as a csv file with a header row
func Mat64toCSV(path string, header []string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()
	if header != nil && len(header) != cols {
		return fmt.Errorf("Mat64toCSV: %d header names for %d columns", len(header), cols)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("Mat64toCSV: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if header != nil {
		fmt.Fprintf(w, "%s\n", strings.Join(header, ","))
	}

	stride := runtime.NumCPU()
	parsed := make([]string, stride)

	for row := 0; row < rows; row += stride {
		var wg sync.WaitGroup
		jobMark := stride

		if row+stride >= rows {
			jobMark = rows - row
		}

		wg.Add(jobMark)
		for offset := 0; offset < jobMark; offset++ {
			go parseLine(matrix, parsed, offset, row, &wg)
		}
		wg.Wait()

		for i := 0; i < jobMark; i++ {
			fmt.Fprintf(w, "%s\n", parsed[i])
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("Mat64toCSV: write %s: %w", path, err)
	}
	return f.Close()
}

func parseLine(matrix *mat64.Dense, parsed []string, offset int, row int, wg *sync.WaitGroup) {
	_, cols := matrix.Dims()

	fields := make([]string, cols)
	for i := 0; i < cols; i++ {
		fields[i] = strconv.FormatFloat(matrix.At(row+offset, i), 'g', -1, 64)
	}
	parsed[offset] = strings.Join(fields, ",")

	wg.Done()
}

// ColumnToCSV writes a single named column
func ColumnToCSV(path string, name string, values []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ColumnToCSV: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{name}); err != nil {
		return err
	}
	for _, v := range values {
		if err := w.Write([]string{v}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("ColumnToCSV: write %s: %w", path, err)
	}
	return f.Close()
}
