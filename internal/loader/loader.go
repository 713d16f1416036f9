package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/sdpower/fleetlog-go/internal/cache"
	"github.com/sdpower/fleetlog-go/internal/parser"
	"github.com/sdpower/fleetlog-go/internal/types"
)

// Result is the outcome of parsing one candidate file
type Result struct {
	Candidate cache.Candidate
	Record    types.CycleRecord
	Stats     parser.Stats
	// Warning is set when the file was recovered, e.g. a corrupt archive read as text
	Warning error
	// Err is set when the file could not be read at all
	Err error
}

type Loader struct {
	maxWorkers int
	logger     *slog.Logger
}

func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{
		maxWorkers: 4,
		logger:     logger,
	}
}

func (l *Loader) SetWorkers(n int) {
	if n > 0 {
		l.maxWorkers = n
	}
}

// Content is the text of one log file
type Content struct {
	Text []byte
	// Recovered is non-nil when a gzip file failed to decompress and Text
	// holds the raw bytes instead
	Recovered error
}

// ReadLog returns the text content of a log file. Gzip files are
// decompressed in full; when decompression fails the raw bytes are
// returned and Recovered wraps ErrCorruptArchive.
func ReadLog(path string) (Content, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Content{}, types.LoaderError{Path: path, Err: err}
	}
	if !strings.EqualFold(filepath.Ext(path), ".gz") {
		return Content{Text: raw}, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return Content{Text: raw, Recovered: corrupt(path, err)}, nil
	}
	defer zr.Close()

	text, err := io.ReadAll(zr)
	if err != nil {
		return Content{Text: raw, Recovered: corrupt(path, err)}, nil
	}
	return Content{Text: text}, nil
}

func corrupt(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrCorruptArchive, filepath.Base(path), err)
}

// ParseFile reads and analyzes one candidate
func (l *Loader) ParseFile(device string, cand cache.Candidate) Result {
	res := Result{Candidate: cand}

	content, err := ReadLog(cand.Path)
	if err != nil {
		res.Err = err
		return res
	}
	if content.Recovered != nil {
		res.Warning = content.Recovered
		l.logger.Warn("corrupt archive, scanning raw bytes", "device", device, "file", cand.Name, "error", content.Recovered)
	}

	record, stats, err := parser.Analyze(bytes.NewReader(content.Text), parser.Options{
		Device:       device,
		LogFile:      cand.Name,
		FallbackDate: cand.ModTime,
		Logger:       l.logger,
	})
	res.Record = record
	res.Stats = stats
	if err != nil {
		// a scan error still leaves a usable partial record
		l.logger.Warn("log scan ended early", "device", device, "file", cand.Name, "error", err)
		if res.Warning == nil {
			res.Warning = err
		}
	}
	if stats.Malformed > 0 {
		l.logger.Debug("malformed markers", "device", device, "file", cand.Name, "count", stats.Malformed)
	}
	return res
}

// ParseAll parses candidates with a bounded worker pool. Results come back
// sorted by file name regardless of completion order. Candidates not yet
// dispatched when ctx is cancelled are left out and ctx.Err() is returned.
func (l *Loader) ParseAll(ctx context.Context, device string, cands []cache.Candidate, onResult func(Result)) ([]Result, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	jobs := make(chan cache.Candidate, len(cands))
	results := make(chan Result, len(cands))

	var wg sync.WaitGroup
	workers := l.maxWorkers
	if workers > len(cands) {
		workers = len(cands)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
					results <- l.ParseFile(device, cand)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, cand := range cands {
			select {
			case <-ctx.Done():
				return
			case jobs <- cand:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []Result
	for res := range results {
		if onResult != nil {
			onResult(res)
		}
		all = append(all, res)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Candidate.Name < all[j].Candidate.Name
	})

	return all, ctx.Err()
}
