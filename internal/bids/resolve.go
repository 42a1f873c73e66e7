// Package bids locates per-subject inputs in the BIDS and fMRIPrep trees and
// reads the behavioral tables that sit next to them.
package bids

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/KyungWonPark/DiscountGLM/internal/config"
)

// Kind selects which per-subject file ResolveFile looks for
type Kind string

// File kinds
const (
	Bold  Kind = "bold"
	Mask  Kind = "mask"
	Behav Kind = "behav"
)

// Errors
var (
	ErrUnknownKind = errors.New("unknown file kind")
	ErrNoMatch     = errors.New("no files found")
	ErrManyMatches = errors.New("multiple files found")
)

var subjectDir = regexp.MustCompile(`^sub-s(\d+)`)

// Pattern returns the glob used to find a file of the given kind
func Pattern(cfg *config.Config, subjectID string, kind Kind) (string, error) {
	sub := "sub-" + subjectID
	switch kind {
	case Bold:
		return filepath.Join(cfg.FmriprepDir, sub, cfg.BoldFileGlob), nil
	case Mask:
		return filepath.Join(cfg.FmriprepDir, sub, cfg.BoldMaskFileGlob), nil
	case Behav:
		return filepath.Join(cfg.BIDSDir, sub, cfg.BehavGlob), nil
	}
	return "", fmt.Errorf("%w: %q, must be 'bold', 'mask', or 'behav'", ErrUnknownKind, string(kind))
}

// ResolveFile fetches the single file of a kind for a subject
func ResolveFile(cfg *config.Config, subjectID string, kind Kind) (string, error) {
	pattern, err := Pattern(cfg, subjectID, kind)
	if err != nil {
		return "", err
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("bad pattern %s: %w", pattern, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w for %q with pattern: %s", ErrNoMatch, string(kind), pattern)
	case 1:
		return matches[0], nil
	}

	sort.Strings(matches)
	return "", fmt.Errorf("%w for %q with pattern: %s %v", ErrManyMatches, string(kind), pattern, matches)
}

// SubjectIDs lists subject ids (s###) that have a sub-s### directory under dir
func SubjectIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var subids []string
	for _, e := range entries {
		m := subjectDir.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		// follows symlinked subject dirs
		info, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil || !info.IsDir() {
			continue
		}
		id := "s" + m[1]
		if !seen[id] {
			seen[id] = true
			subids = append(subids, id)
		}
	}

	sort.Strings(subids)
	return subids, nil
}
