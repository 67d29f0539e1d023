package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRun writes a 5 m/s equatorial run of n points, one per second
func writeRun(t *testing.T, path string, start time.Time, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><gpx version="1.1"><trk><trkseg>`)
	for i := range n {
		fmt.Fprintf(&b, `<trkpt lat="0" lon="%.9f"><time>%s</time></trkpt>`,
			float64(i)*5/111000, start.Add(time.Duration(i)*time.Second).Format(time.RFC3339))
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func TestRunDir(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, filepath.Join(dir, "run.gpx"), time.Date(2021, 12, 26, 9, 0, 0, 0, time.UTC), 120)
	outPath := filepath.Join(t.TempDir(), "results.txt")

	var out bytes.Buffer
	code := run([]string{
		"--dir", dir,
		"--distances", "400,5000",
		"--no-progress",
		"--log-level", "error",
		"-o", outPath,
	}, &out)
	require.Equal(t, 0, code)

	assert.Contains(t, out.String(), "Distance: 400 m")
	assert.Contains(t, out.String(), "00:01:20")
	assert.Contains(t, out.String(), "Distance: 5 km")
	assert.Contains(t, out.String(), "No segments found")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "00:01:20")
}

func TestRunJSON(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, filepath.Join(dir, "run.gpx"), time.Date(2021, 12, 26, 9, 0, 0, 0, time.UTC), 120)

	var out bytes.Buffer
	code := run([]string{"--dir", dir, "--distances", "400", "--json", "--no-progress", "--log-level", "error"}, &out)
	require.Equal(t, 0, code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.NotEmpty(t, doc["run_id"])
	assert.Len(t, doc["distances"], 1)
}

func TestRunInvalidArgs(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 2, run([]string{"--log-level", "error"}, &out))
	assert.Equal(t, 2, run([]string{"--zip", "a.zip", "--top", "0"}, &out))
	assert.Equal(t, 2, run([]string{"--bogus"}, &out))
	assert.Equal(t, 1, run([]string{"--zip", filepath.Join(t.TempDir(), "missing.zip"), "--log-level", "error"}, &out))
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 0, run([]string{"--help"}, &out))
	assert.Contains(t, out.String(), "usage: gpace")
	assert.Contains(t, out.String(), "--distances")
}
