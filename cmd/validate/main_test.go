package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/couchcryptid/wildfire-water-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodFile = `Hylak ID: 101 ImageNum: 2
2021-06-01 2021-06-20 101 2021-06-15 [0.03,0.07,0.05,0.04,0.03,0.02] 0.42
2021-06-01 2021-06-20 101 2021-07-02 [0.031,0.0712,0.05,0.04,0.03,0.02] 1.5
`

func writeOutput(t *testing.T, dir, id, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+store.OutputExt), []byte(content), 0o644))
}

func validate(t *testing.T, o options) (int, string) {
	t.Helper()
	var buf bytes.Buffer
	code := run(&buf, o)
	return code, buf.String()
}

func TestRun_ValidDirectory(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "101", goodFile)
	writeOutput(t, dir, "303", "Error: query imagery: backend unavailable\n")
	ledger, err := store.OpenLedger(filepath.Join(dir, store.LedgerFile))
	require.NoError(t, err)
	require.NoError(t, ledger.Put("101", store.Entry{State: domain.StateDone, Records: 2}))
	require.NoError(t, ledger.Put("303", store.Entry{State: domain.StateFailed}))
	require.NoError(t, ledger.Put("404", store.Entry{State: domain.StateEmpty}))

	catalogPath := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(catalogPath, []byte(
		"Hylak_id,earliest_initialdat,latest_finaldate\n101,2021-06-01,2021-06-20\n303,2020-01-01,2020-01-02\n"), 0o644))

	code, out := validate(t, options{outDir: dir, catalogPath: catalogPath, kind: "lake", marginMonths: 2})

	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "Files: 2 output, 1 error; 2 records")
	assert.Contains(t, out, "All validations passed.")
}

func TestRun_DetectsProblems(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "too many decimals",
			content: "2021-06-01 2021-06-20 7 2021-06-15 [0.12345,0.07,0.05,0.04,0.03,0.02] 0.42\n",
			want:    "value 0.12345 has more than 4 decimals",
		},
		{
			name:    "elapsed precision",
			content: "2021-06-01 2021-06-20 7 2021-06-15 [0.1,0.07,0.05,0.04,0.03,0.02] 0.421\n",
			want:    "elapsed 0.421 has more than 2 decimals",
		},
		{
			name:    "all zero",
			content: "2021-06-01 2021-06-20 7 2021-06-15 [0,0,0,0,0,0] 0.4\n",
			want:    "all-zero values",
		},
		{
			name: "dates out of order",
			content: "2021-06-01 2021-06-20 7 2021-06-15 [0.1,0.07,0.05,0.04,0.03,0.02] 0.4\n" +
				"2021-06-01 2021-06-20 7 2021-06-15 [0.1,0.07,0.05,0.04,0.03,0.02] 0.4\n",
			want: "date 2021-06-15 not after 2021-06-15",
		},
		{
			name:    "wrong feature",
			content: "2021-06-01 2021-06-20 8 2021-06-15 [0.1,0.07,0.05,0.04,0.03,0.02] 0.4\n",
			want:    "feature id 8",
		},
		{
			name:    "five values",
			content: "2021-06-01 2021-06-20 7 2021-06-15 [0.1,0.07,0.05,0.04,0.03] 0.4\n",
			want:    "5 values, want 6",
		},
		{
			name:    "garbage",
			content: "not a record\n",
			want:    "expected 6 fields",
		},
		{
			name:    "no trailing newline",
			content: "2021-06-01 2021-06-20 7 2021-06-15 [0.1,0.07,0.05,0.04,0.03,0.02] 0.4",
			want:    "missing trailing newline",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeOutput(t, dir, "7", tt.content)

			code, out := validate(t, options{outDir: dir})

			assert.Equal(t, 1, code)
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "Validation FAILED.")
		})
	}
}

func TestRun_LedgerMismatch(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "101", goodFile)
	ledger, err := store.OpenLedger(filepath.Join(dir, store.LedgerFile))
	require.NoError(t, err)
	require.NoError(t, ledger.Put("101", store.Entry{State: domain.StateDone, Records: 3}))
	require.NoError(t, ledger.Put("202", store.Entry{State: domain.StateDone, Records: 1}))

	code, out := validate(t, options{outDir: dir})

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "101: 2 records in file, ledger says 3")
	assert.Contains(t, out, "202: ledger state done but no output file")
}

func TestRun_WithoutLedger(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "101", goodFile)

	code, out := validate(t, options{outDir: dir})

	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "ledger checks skipped")
}

func TestRun_DateOutsideWindow(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, "101", "2021-06-01 2021-06-20 101 2022-01-15 [0.1,0.07,0.05,0.04,0.03,0.02] 0.4\n")
	catalogPath := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(catalogPath, []byte(
		"Hylak_id,earliest_initialdat,latest_finaldate\n101,2021-06-01,2021-06-20\n"), 0o644))

	code, out := validate(t, options{outDir: dir, catalogPath: catalogPath, kind: "lake", marginMonths: 2})

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "date 2022-01-15 outside 2021-04-01/2021-08-20")
}

func TestRun_MissingDirectory(t *testing.T) {
	code, out := validate(t, options{outDir: filepath.Join(t.TempDir(), "nope")})

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "FATAL")
}
