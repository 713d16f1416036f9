package codec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/fleetlog-go/internal/types"
)

type sample struct {
	Name  string             `cbor:"name"`
	Sizes map[string]float64 `cbor:"sizes"`
}

func TestSealIsDeterministic(t *testing.T) {
	v := sample{Name: "x", Sizes: map[string]float64{"b": 2, "a": 1, "c": 3}}
	first, err := Seal(v)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Seal(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.cbor")
	want := sample{Name: "10.0.0.1", Sizes: map[string]float64{"logfile-a.gz": 1.5}}
	require.NoError(t, WriteFile(path, want))

	var got sample
	require.NoError(t, ReadFile(path, &got))
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestOpenRejectsCorruption(t *testing.T) {
	frame, err := Seal(sample{Name: "x"})
	require.NoError(t, err)

	flipped := append([]byte(nil), frame...)
	flipped[len(flipped)-1] ^= 0xff
	var got sample
	assert.ErrorIs(t, Open(flipped, &got), types.ErrChecksumMismatch)

	assert.ErrorIs(t, Open(frame[:10], &got), types.ErrChecksumMismatch)
	assert.ErrorIs(t, Open([]byte(`{"json":"not a frame at all, long enough to hold a digest"}`), &got), types.ErrChecksumMismatch)
}

func TestReadFileMissing(t *testing.T) {
	var got sample
	err := ReadFile(filepath.Join(t.TempDir(), "absent.cbor"), &got)
	assert.True(t, os.IsNotExist(err))
}
