// Package codec persists engine state as deterministic CBOR framed by a
// BLAKE3 digest. A frame is the 32-byte digest of the payload followed by
// the payload itself; a digest mismatch marks the file as corrupt.
package codec

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/sdpower/fleetlog-go/internal/types"
)

// DigestSize is the length of the frame header
const DigestSize = 32

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	// core deterministic encoding keeps map order stable, so rewriting an
	// unchanged table produces identical bytes
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Seal encodes v and prefixes the digest of the encoding
func Seal(v any) ([]byte, error) {
	payload, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(payload)
	frame := make([]byte, 0, DigestSize+len(payload))
	frame = append(frame, sum[:]...)
	return append(frame, payload...), nil
}

// Open verifies a frame produced by Seal and decodes its payload into v
func Open(frame []byte, v any) error {
	if len(frame) < DigestSize {
		return fmt.Errorf("%w: frame of %d bytes", types.ErrChecksumMismatch, len(frame))
	}
	payload := frame[DigestSize:]
	sum := blake3.Sum256(payload)
	if !bytes.Equal(sum[:], frame[:DigestSize]) {
		return types.ErrChecksumMismatch
	}
	if err := Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidFormat, err)
	}
	return nil
}

// WriteFile seals v and atomically replaces path with the frame
func WriteFile(path string, v any) error {
	frame, err := Seal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return WriteAtomic(path, frame)
}

// ReadFile reads and opens a frame written by WriteFile
func ReadFile(path string, v any) error {
	frame, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Open(frame, v)
}

// WriteAtomic writes data to a temporary file next to path and renames it
// into place, so readers never observe a partial file.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}
