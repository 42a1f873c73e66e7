package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KyungWonPark/DiscountGLM/internal/design"
	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

var statuses = []design.Status{
	{SubID: "s101", Include: true, Reason: design.PassedReason},
	{SubID: "s102", Include: false, Reason: "behav missing: no match"},
	{SubID: "s103", Include: true, Reason: design.PassedReason},
	{SubID: "s104", Include: false, Reason: "singular response: 0 smaller sooner / 2 larger later"},
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screening")

	p, err := Write(dir, statuses)
	require.NoError(t, err)

	good, err := os.ReadFile(p.GoodSubjects)
	require.NoError(t, err)
	assert.Equal(t, "s101\ns103\n", string(good))

	tab, err := io.ReadTable(p.CSV, ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_id", "include", "reason"}, tab.Header)
	require.Len(t, tab.Records, 4)
	assert.Equal(t, []string{"s104", "false", "singular response: 0 smaller sooner / 2 larger later"}, tab.Records[3])

	f, err := excelize.OpenFile(p.Workbook)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(statusSheet)
	require.NoError(t, err)
	want := [][]string{
		{"sub_id", "include", "reason"},
		{"s101", "TRUE", design.PassedReason},
		{"s102", "FALSE", "behav missing: no match"},
		{"s103", "TRUE", design.PassedReason},
		{"s104", "FALSE", "singular response: 0 smaller sooner / 2 larger later"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("workbook mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteGoodSubjectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), GoodSubjects)
	require.NoError(t, WriteGoodSubjects(path, statuses[1:2]))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, raw)
}
