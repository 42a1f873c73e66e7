package bids

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/KyungWonPark/DiscountGLM/internal/config"
	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

// ExclusionTask is the task whose rows are kept from the exclusions table
const ExclusionTask = "discountFix"

// ErrExclusionsNotFound is returned when the exclusions table is absent
var ErrExclusionsNotFound = errors.New("exclusion file not found")

// Exclusions holds the per-subject exclusion criteria of one task
type Exclusions struct {
	// Criteria names in file order
	Columns []string
	rows    map[string][]bool
}

// Criteria returns the criteria a subject met, in column order. Subjects
// without a row met none.
func (x *Exclusions) Criteria(subject string) []string {
	flags, ok := x.rows[subject]
	if !ok {
		return nil
	}

	var met []string
	for i, flag := range flags {
		if flag {
			met = append(met, x.Columns[i])
		}
	}
	return met
}

// Subjects returns the number of subjects with a row
func (x *Exclusions) Subjects() int {
	return len(x.rows)
}

// LoadExclusions reads the suggested exclusions table configured for cfg
func LoadExclusions(cfg *config.Config) (*Exclusions, error) {
	path := cfg.ExclusionsFile()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExclusionsNotFound, path)
	}

	return ReadExclusions(path, ExclusionTask)
}

// ReadExclusions parses an exclusions CSV whose first, unnamed column holds
// <subject>_<task> labels and keeps the rows of task
func ReadExclusions(path string, task string) (*Exclusions, error) {
	table, err := io.ReadTable(path, ',')
	if err != nil {
		return nil, err
	}

	if len(table.Header) == 0 || (table.Header[0] != "" && table.Header[0] != "Unnamed: 0") {
		return nil, fmt.Errorf("unnamed first column not found in %s. Expected subject_task labels in first column", path)
	}

	x := &Exclusions{
		Columns: append([]string(nil), table.Header[1:]...),
		rows:    make(map[string][]bool),
	}

	for _, rec := range table.Records {
		if len(rec) == 0 {
			continue
		}

		subject, rowTask, _ := strings.Cut(strings.TrimSpace(rec[0]), "_")
		if rowTask != task {
			continue
		}
		// first row of a subject wins
		if _, seen := x.rows[subject]; seen {
			continue
		}

		flags := make([]bool, len(x.Columns))
		for i := range x.Columns {
			cell := ""
			if i+1 < len(rec) {
				cell = rec[i+1]
			}
			flags[i] = criterionMet(cell)
		}
		x.rows[subject] = flags
	}

	return x, nil
}

// criterionMet reads a cell as a truth value. Missing cells are NaN once
// parsed and NaN is truthy, so they count as met.
func criterionMet(cell string) bool {
	cell = strings.TrimSpace(cell)
	if IsMissing(cell) {
		return true
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v != 0
	}
	if v, err := strconv.ParseBool(cell); err == nil {
		return v
	}
	return true
}
