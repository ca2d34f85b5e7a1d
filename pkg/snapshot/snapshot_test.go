package snapshot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xylemdb/xylem/pkg/config"
	"github.com/xylemdb/xylem/pkg/table"
)

func testConfig() *config.Config {
	return &config.Config{
		Version:    config.CurrentManifestVersion,
		BlockPower: 6,
		NodePower:  4,
		FillFactor: 0.5,
	}
}

// buildDatabase creates a small table on disk and returns its directory
// and content checksum.
func buildDatabase(t *testing.T) (string, uint64) {
	t.Helper()
	dir := t.TempDir()

	tbl, err := table.Create(testConfig(), dir, "tbl")
	require.NoError(t, err)

	payload := make([]byte, 9*16)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	require.NoError(t, tbl.Insert(-1, payload))
	require.NoError(t, tbl.Delete(2, 3))

	sum, err := tbl.Checksum()
	require.NoError(t, err)
	require.NoError(t, tbl.Close())
	return dir, sum
}

func TestRoundTrip(t *testing.T) {
	for _, codec := range []CompressionCodec{CodecNone, CodecSnappy, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			dir, sum := buildDatabase(t)

			var buf bytes.Buffer
			require.NoError(t, Write(dir, "tbl", &buf, codec))

			restored := t.TempDir()
			require.NoError(t, Restore(&buf, restored, "tbl"))

			tbl, err := table.Open(testConfig(), restored, "tbl")
			require.NoError(t, err)
			defer tbl.Close()

			got, err := tbl.Checksum()
			require.NoError(t, err)
			assert.Equal(t, sum, got, "restored table differs from source")
			assert.Equal(t, 6, tbl.Size())
		})
	}
}

func TestRestoreRefusesOverwrite(t *testing.T) {
	dir, _ := buildDatabase(t)

	var buf bytes.Buffer
	require.NoError(t, Write(dir, "tbl", &buf, CodecNone))

	err := Restore(&buf, dir, "tbl")
	assert.ErrorIs(t, err, ErrDatabaseExists)
}

func TestRestoreDetectsCorruption(t *testing.T) {
	dir, _ := buildDatabase(t)

	var buf bytes.Buffer
	require.NoError(t, Write(dir, "tbl", &buf, CodecNone))

	// flip a byte in the last section's payload
	raw := buf.Bytes()
	raw[len(raw)-5] ^= 0xFF

	err := Restore(bytes.NewReader(raw), t.TempDir(), "tbl")
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestRestoreRejectsGarbage(t *testing.T) {
	err := Restore(bytes.NewReader([]byte("not a snapshot at all, far too short")), t.TempDir(), "tbl")
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestRestoreDetectsHeaderTampering(t *testing.T) {
	dir, _ := buildDatabase(t)

	var buf bytes.Buffer
	require.NoError(t, Write(dir, "tbl", &buf, CodecZstd))

	raw := buf.Bytes()
	raw[13] ^= 0x01 // codec field

	err := Restore(bytes.NewReader(raw), t.TempDir(), "tbl")
	assert.Error(t, err)
}

func TestCompressionRoundTrip(t *testing.T) {
	cm, err := NewCompressionManager()
	require.NoError(t, err)
	defer cm.Close()

	data := bytes.Repeat([]byte("xylem block data "), 100)
	for _, codec := range []CompressionCodec{CodecNone, CodecSnappy, CodecZstd} {
		packed, err := cm.Compress(data, codec)
		require.NoError(t, err)
		unpacked, err := cm.Decompress(packed, codec)
		require.NoError(t, err)
		assert.Equal(t, data, unpacked, "codec %s", codec)
	}

	_, err = cm.Compress(data, CompressionCodec(99))
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
