package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/fleetlog-go/internal/cache"
	"github.com/sdpower/fleetlog-go/internal/types"
)

const sessionLines = "2025-03-01T06:00:00Z 10.0.0.1 pppd[1]: Sent 1000 bytes, received 2000 bytes.\n" +
	"2025-03-01T06:00:01Z 10.0.0.1 pppd[1]: Connect time 1.5 minutes.\n"

func gzipBytes(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func candidate(t *testing.T, dir, name string, data []byte) cache.Candidate {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return cache.Candidate{
		Path:      path,
		Name:      name,
		Signature: types.FileSignature{Size: info.Size(), ModTime: info.ModTime().UnixNano()},
		ModTime:   info.ModTime(),
	}
}

func TestReadLog(t *testing.T) {
	dir := t.TempDir()

	plain := candidate(t, dir, "logfile-a.log", []byte(sessionLines))
	content, err := ReadLog(plain.Path)
	require.NoError(t, err)
	assert.Nil(t, content.Recovered)
	assert.Equal(t, sessionLines, string(content.Text))

	zipped := candidate(t, dir, "logfile-b.gz", gzipBytes(t, sessionLines))
	content, err = ReadLog(zipped.Path)
	require.NoError(t, err)
	assert.Nil(t, content.Recovered)
	assert.Equal(t, sessionLines, string(content.Text))

	_, err = ReadLog(filepath.Join(dir, "missing.gz"))
	var loaderErr types.LoaderError
	assert.ErrorAs(t, err, &loaderErr)
}

func TestCorruptGzipFallsBackToRawText(t *testing.T) {
	dir := t.TempDir()
	l := New(nil)

	// not gzip at all
	notGzip := candidate(t, dir, "logfile-20250301_060000-20250301_180000.gz", []byte(sessionLines))
	res := l.ParseFile("10.0.0.1", notGzip)
	require.NoError(t, res.Err)
	assert.ErrorIs(t, res.Warning, types.ErrCorruptArchive)
	assert.Equal(t, 1, res.Record.GSMSessions)
	assert.InDelta(t, 1.5, res.Record.GSMMinutes, 1e-9)

	// truncated stream
	full := gzipBytes(t, sessionLines)
	truncated := candidate(t, dir, "logfile-20250302_060000-20250302_180000.gz", full[:len(full)/2])
	res = l.ParseFile("10.0.0.1", truncated)
	require.NoError(t, res.Err)
	assert.ErrorIs(t, res.Warning, types.ErrCorruptArchive)
	assert.Equal(t, "logfile-20250302_060000-20250302_180000.gz", res.Record.LogFile)
	assert.Equal(t, "2025-03-02", res.Record.Date, "date falls back to the file name")
	assert.Zero(t, res.Record.GSMSessions)
}

func TestParseAllReturnsNameOrder(t *testing.T) {
	dir := t.TempDir()
	var cands []cache.Candidate
	for i := 9; i >= 0; i-- {
		name := fmt.Sprintf("logfile-2025030%d_060000-2025030%d_180000.log", i, i)
		cands = append(cands, candidate(t, dir, name, []byte(sessionLines)))
	}

	l := New(nil)
	l.SetWorkers(3)
	seen := 0
	results, err := l.ParseAll(context.Background(), "10.0.0.1", cands, func(Result) { seen++ })
	require.NoError(t, err)
	require.Len(t, results, 10)
	assert.Equal(t, 10, seen)
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1].Candidate.Name, results[i].Candidate.Name)
	}
	for _, res := range results {
		assert.Equal(t, "10.0.0.1", res.Record.Device)
		assert.Equal(t, 1, res.Record.GSMSessions)
	}
}

func TestParseAllCancelled(t *testing.T) {
	dir := t.TempDir()
	cands := []cache.Candidate{candidate(t, dir, "logfile-a.log", []byte(sessionLines))}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).ParseAll(ctx, "10.0.0.1", cands, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFileUsesModTimeFallback(t *testing.T) {
	dir := t.TempDir()
	cand := candidate(t, dir, "logfile-current.log", []byte("nothing useful\n"))
	cand.ModTime = time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	res := New(nil).ParseFile("10.0.0.1", cand)
	require.NoError(t, res.Err)
	assert.Equal(t, "2025-03-09", res.Record.Date)
}
