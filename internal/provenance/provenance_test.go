package provenance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	extra := map[string]any{"subid": "s101", "hp_filter": 1.0 / 450}

	path, err := Write(context.Background(), dir, "lsa", extra)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "z_provenance_lsa.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, "lsa", got["analysis"])
	assert.Equal(t, "s101", got["subid"])
	assert.InDelta(t, 1.0/450, got["hp_filter"], 1e-15)
	assert.NotEmpty(t, got["git_commit"])
	assert.Contains(t, got, "git_dirty")
	assert.Contains(t, got, "hostname")

	_, err = uuid.Parse(got["run_id"].(string))
	assert.NoError(t, err)

	_, err = time.Parse(time.RFC3339, got["timestamp"].(string))
	assert.NoError(t, err)
}

func TestFieldsExtraOverrides(t *testing.T) {
	r := &Record{Analysis: "lsa", Extra: map[string]any{"analysis": "lsa-roi"}}
	assert.Equal(t, "lsa-roi", r.Fields()["analysis"])
}

func TestCollectOutsideRepo(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	r := Collect(context.Background(), "lsa", nil)
	assert.Equal(t, UnknownCommit, r.GitCommit)
	assert.False(t, r.GitDirty)
}
