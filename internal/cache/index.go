package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sdpower/fleetlog-go/internal/codec"
	"github.com/sdpower/fleetlog-go/internal/types"
)

// Index is the persisted per-device record of which files were parsed and
// with which signature
type Index struct {
	Signatures map[string]types.FileSignature `cbor:"signatures"`
	Processed  map[string]bool                `cbor:"processed"`
}

// NewIndex returns an empty index
func NewIndex() *Index {
	return &Index{
		Signatures: make(map[string]types.FileSignature),
		Processed:  make(map[string]bool),
	}
}

// IndexPath is where the index of a device lives under the output directory
func IndexPath(outDir, device string) string {
	return filepath.Join(outDir, "cache", device+"_index.cbor")
}

// LoadIndex reads the index at path. A missing file yields an empty index
// and no error. A corrupt file also yields an empty index; the returned
// error wraps ErrCorruptIndex and is meant to be reported as a warning.
func LoadIndex(path string) (*Index, error) {
	idx := NewIndex()
	err := codec.ReadFile(path, idx)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return NewIndex(), nil
	default:
		return NewIndex(), fmt.Errorf("%w %s: %v", types.ErrCorruptIndex, path, err)
	}

	if idx.Signatures == nil {
		idx.Signatures = make(map[string]types.FileSignature)
	}
	if idx.Processed == nil {
		idx.Processed = make(map[string]bool)
	}
	return idx, nil
}

// Save atomically rewrites the index at path
func (idx *Index) Save(path string) error {
	if err := codec.WriteFile(path, idx); err != nil {
		return fmt.Errorf("saving cache index: %w", err)
	}
	return nil
}

// Matches reports whether path was last indexed with exactly sig
func (idx *Index) Matches(path string, sig types.FileSignature) bool {
	prev, ok := idx.Signatures[path]
	return ok && prev == sig
}

// Record stores the signature of a parsed file and marks its name processed
func (idx *Index) Record(path string, sig types.FileSignature) {
	idx.Signatures[path] = sig
	idx.Processed[filepath.Base(path)] = true
}

// Paths returns the indexed paths in sorted order
func (idx *Index) Paths() []string {
	paths := make([]string, 0, len(idx.Signatures))
	for p := range idx.Signatures {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// RemoveIndex deletes the index of one device. Removing an absent index is not an error.
func RemoveIndex(outDir, device string) error {
	err := os.Remove(IndexPath(outDir, device))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DevicesWithIndex lists the devices that have an index under outDir
func DevicesWithIndex(outDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(outDir, "cache"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var devices []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, "_index.cbor") {
			continue
		}
		devices = append(devices, strings.TrimSuffix(name, "_index.cbor"))
	}
	sort.Strings(devices)
	return devices, nil
}
