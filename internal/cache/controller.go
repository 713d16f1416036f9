package cache

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sdpower/fleetlog-go/internal/parser"
	"github.com/sdpower/fleetlog-go/internal/types"
)

// DefaultPrefix and DefaultExtensions describe the log-file naming convention
const DefaultPrefix = "logfile-"

var DefaultExtensions = []string{".gz", ".log", ".txt"}

// Config is the explicit scan configuration of one device's controller
type Config struct {
	Prefix     string
	Extensions []string
	Window     types.Window
	// Force bypasses the index for one run: it is neither read nor written
	Force bool
}

// Candidate is a log file that passed the naming and window filters
type Candidate struct {
	Path      string
	Name      string
	Signature types.FileSignature
	ModTime   time.Time
}

// Selection is the outcome of enumerating one device directory
type Selection struct {
	Parse       []Candidate
	Unchanged   int
	Seeded      int
	OutOfWindow int
}

// Skipped is the number of candidates not parsed this run
func (s Selection) Skipped() int {
	return s.Unchanged + s.Seeded
}

// Controller decides which files of one device need parsing. A controller
// is owned by a single goroutine.
type Controller struct {
	cfg       Config
	indexPath string
	index     *Index
	seed      map[string]bool
	logger    *slog.Logger
}

func NewController(cfg Config, indexPath string, logger *slog.Logger) *Controller {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		cfg:       cfg,
		indexPath: indexPath,
		index:     NewIndex(),
		seed:      make(map[string]bool),
		logger:    logger,
	}
}

// Load reads the persisted index. A corrupt index is replaced by an empty
// one and reported through the returned error; the caller treats it as a
// warning.
func (c *Controller) Load() error {
	if c.cfg.Force {
		return nil
	}
	idx, err := LoadIndex(c.indexPath)
	c.index = idx
	if err != nil {
		c.logger.Warn("cache index unusable, rescanning", "path", c.indexPath, "error", err)
	}
	return err
}

// AddSeed marks file names as already processed by an earlier run
func (c *Controller) AddSeed(names ...string) {
	for _, n := range names {
		c.seed[n] = true
	}
}

// Index exposes the index for inspection
func (c *Controller) Index() *Index {
	return c.index
}

// Select enumerates dir and returns the files that must be parsed, sorted by name
func (c *Controller) Select(dir string) (Selection, error) {
	var sel Selection

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sel, fmt.Errorf("%w: %s", types.ErrMissingDevice, dir)
		}
		return sel, types.LoaderError{Path: dir, Err: err}
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !c.matchesConvention(name) {
			continue
		}
		if start, _ := parser.ParseNameWindow(name); start != nil && !c.cfg.Window.Contains(*start) {
			sel.OutOfWindow++
			continue
		}
		if c.seed[name] {
			sel.Seeded++
			continue
		}

		info, err := e.Info()
		if err != nil {
			c.logger.Warn("cannot stat log file", "file", name, "error", err)
			continue
		}
		cand := Candidate{
			Path:      filepath.Join(dir, name),
			Name:      name,
			Signature: types.FileSignature{Size: info.Size(), ModTime: info.ModTime().UnixNano()},
			ModTime:   info.ModTime(),
		}
		if !c.cfg.Force && c.index.Matches(cand.Path, cand.Signature) {
			sel.Unchanged++
			continue
		}
		sel.Parse = append(sel.Parse, cand)
	}

	sort.Slice(sel.Parse, func(i, j int) bool {
		return sel.Parse[i].Name < sel.Parse[j].Name
	})
	return sel, nil
}

func (c *Controller) matchesConvention(name string) bool {
	if !strings.HasPrefix(name, c.cfg.Prefix) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range c.cfg.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// MarkParsed records a parsed candidate in the index
func (c *Controller) MarkParsed(cand Candidate) {
	c.index.Record(cand.Path, cand.Signature)
}

// Save persists the index unless the run is a forced rescan
func (c *Controller) Save() error {
	if c.cfg.Force {
		return nil
	}
	return c.index.Save(c.indexPath)
}
