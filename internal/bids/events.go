package bids

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

// Choices of the two-choice delay-discounting task
const (
	SmallerSooner = "smaller_sooner"
	LargerLater   = "larger_later"
)

// Event is one trial row of a behavioral events file
type Event struct {
	Onset    float64
	Duration float64
	// Choice is empty when the trial had no response
	Choice string
}

// Responded reports whether a choice was recorded
func (e Event) Responded() bool {
	return e.Choice != ""
}

var errMissing = errors.New("missing value")

// Events is a subject's trial list in file order
type Events []Event

// Count returns the number of trials with the given choice
func (ev Events) Count(choice string) int {
	n := 0
	for _, e := range ev {
		if e.Choice == choice {
			n++
		}
	}
	return n
}

// MaxOnset returns the latest onset, 0 for an empty list
func (ev Events) MaxOnset() float64 {
	var latest float64
	for i, e := range ev {
		if i == 0 || e.Onset > latest {
			latest = e.Onset
		}
	}
	return latest
}

// IsMissing reports whether a cell holds one of the usual NA markers
func IsMissing(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "n/a", "na", "nan", "null", "none", "#n/a":
		return true
	}
	return false
}

// LoadEvents reads a BIDS events TSV with onset, duration and choice columns
func LoadEvents(path string) (Events, error) {
	if filepath.Ext(path) != ".tsv" {
		return nil, fmt.Errorf("expected a .tsv file, got: %s", path)
	}

	table, err := io.ReadTable(path, '\t')
	if err != nil {
		return nil, err
	}

	cols := make(map[string]int)
	for _, name := range []string{"onset", "duration", "choice"} {
		idx := table.Index(name)
		if idx < 0 {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
		cols[name] = idx
	}

	events := make(Events, 0, len(table.Records))
	for row, rec := range table.Records {
		line := row + 2
		cell := func(name string) string {
			if cols[name] < len(rec) {
				return strings.TrimSpace(rec[cols[name]])
			}
			return ""
		}

		onset, err := parseFloat(cell("onset"))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: onset: %w", path, line, err)
		}
		duration, err := parseFloat(cell("duration"))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: duration: %w", path, line, err)
		}

		choice := cell("choice")
		if IsMissing(choice) {
			choice = ""
		}

		events = append(events, Event{Onset: onset, Duration: duration, Choice: choice})
	}

	return events, nil
}

func parseFloat(s string) (float64, error) {
	if IsMissing(s) {
		return 0, errMissing
	}
	return strconv.ParseFloat(s, 64)
}
