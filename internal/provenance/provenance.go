// Package provenance stamps analysis outputs with the run environment.
package provenance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnknownCommit is recorded when the git commit cannot be determined
const UnknownCommit = "unknown"

const gitTimeout = 5 * time.Second

// Record is the content of a provenance file
type Record struct {
	Analysis  string
	RunID     string
	Timestamp string
	GitCommit string
	GitDirty  bool
	Hostname  string
	Extra     map[string]any
}

// Fields flattens the record into one JSON object; extra fields override the
// standard ones
func (r *Record) Fields() map[string]any {
	fields := map[string]any{
		"analysis":   r.Analysis,
		"run_id":     r.RunID,
		"timestamp":  r.Timestamp,
		"git_commit": r.GitCommit,
		"git_dirty":  r.GitDirty,
		"hostname":   r.Hostname,
	}
	for k, v := range r.Extra {
		fields[k] = v
	}
	return fields
}

// Collect gathers the provenance of the current process
func Collect(ctx context.Context, analysisName string, extra map[string]any) *Record {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Record{
		Analysis:  analysisName,
		RunID:     uuid.NewString(),
		Timestamp: time.Now().Format(time.RFC3339),
		GitCommit: gitCommit(ctx),
		GitDirty:  gitDirty(ctx),
		Hostname:  host,
		Extra:     extra,
	}
}

// Write saves z_provenance_<analysisName>.json into outputDir and returns
// its path
func Write(ctx context.Context, outputDir, analysisName string, extra map[string]any) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}

	rec := Collect(ctx, analysisName, extra)
	data, err := json.MarshalIndent(rec.Fields(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("provenance: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("z_provenance_%s.json", analysisName))
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func git(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func gitCommit(ctx context.Context) string {
	out, err := git(ctx, "rev-parse", "--short", "HEAD")
	if err != nil || out == "" {
		return UnknownCommit
	}
	return out
}

func gitDirty(ctx context.Context) bool {
	out, err := git(ctx, "status", "--porcelain")
	return err == nil && out != ""
}
