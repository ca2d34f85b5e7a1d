// Package snapshot packs a table database into a single compressed,
// checksummed stream and restores it. A snapshot covers the three files
// of a database: the header sidecar, the index sidecar, and the data
// file. The table must be flushed and closed (or at least flushed)
// before it is snapshotted.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

const (
	// Magic identifies a snapshot stream ("XYLMSNAP").
	Magic = uint64(0x58594C4D534E4150)
	// CurrentVersion is the current snapshot format version.
	CurrentVersion = uint32(1)

	// sections: header sidecar, index sidecar, data file
	numSections = 3

	// magic + version + codec + 3 x (raw, packed, checksum) + header checksum
	headerSize = 8 + 4 + 4 + numSections*24 + 8

	// maxSectionSize caps a section read so a corrupt length field
	// cannot trigger an absurd allocation.
	maxSectionSize = 1 << 33
)

var (
	// ErrInvalidSnapshot is returned when the stream is not a snapshot
	// or the format version is unsupported
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrChecksumMismatch is returned when a section does not match its
	// recorded checksum
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
	// ErrDatabaseExists is returned when restoring over existing files
	ErrDatabaseExists = errors.New("database already exists")
)

type section struct {
	rawLen    uint64
	packedLen uint64
	checksum  uint64
}

type header struct {
	codec    CompressionCodec
	sections [numSections]section
}

func (h *header) encode() []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint64(buf[0:8], Magic)
	binary.BigEndian.PutUint32(buf[8:12], CurrentVersion)
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.codec))
	for i, s := range h.sections {
		o := 16 + i*24
		binary.BigEndian.PutUint64(buf[o:], s.rawLen)
		binary.BigEndian.PutUint64(buf[o+8:], s.packedLen)
		binary.BigEndian.PutUint64(buf[o+16:], s.checksum)
	}
	binary.BigEndian.PutUint64(buf[headerSize-8:], xxhash.Sum64(buf[:headerSize-8]))
	return buf
}

func decodeHeader(buf []byte) (*header, error) {
	if binary.BigEndian.Uint64(buf[0:8]) != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidSnapshot)
	}
	if v := binary.BigEndian.Uint32(buf[8:12]); v != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, v)
	}
	if sum := binary.BigEndian.Uint64(buf[headerSize-8:]); sum != xxhash.Sum64(buf[:headerSize-8]) {
		return nil, fmt.Errorf("%w: header", ErrChecksumMismatch)
	}

	h := &header{codec: CompressionCodec(binary.BigEndian.Uint32(buf[12:16]))}
	for i := range h.sections {
		o := 16 + i*24
		h.sections[i] = section{
			rawLen:    binary.BigEndian.Uint64(buf[o:]),
			packedLen: binary.BigEndian.Uint64(buf[o+8:]),
			checksum:  binary.BigEndian.Uint64(buf[o+16:]),
		}
		if h.sections[i].packedLen > maxSectionSize || h.sections[i].rawLen > maxSectionSize {
			return nil, fmt.Errorf("%w: section %d length", ErrInvalidSnapshot, i)
		}
	}
	return h, nil
}

// sectionPaths returns the database files in snapshot order.
func sectionPaths(dbPath, prefix string) [numSections]string {
	data := filepath.Join(dbPath, prefix)
	return [numSections]string{data + "i", data + "x", data}
}

// Write packs the database with the given prefix into w. The caller
// must have flushed the table; Write reads the on-disk state.
func Write(dbPath, prefix string, w io.Writer, codec CompressionCodec) error {
	cm, err := NewCompressionManager()
	if err != nil {
		return err
	}
	defer cm.Close()

	hdr := header{codec: codec}
	var packed [numSections][]byte
	for i, path := range sectionPaths(dbPath, prefix) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		p, err := cm.Compress(raw, codec)
		if err != nil {
			return err
		}
		packed[i] = p
		hdr.sections[i] = section{
			rawLen:    uint64(len(raw)),
			packedLen: uint64(len(p)),
			checksum:  xxhash.Sum64(raw),
		}
	}

	if _, err := w.Write(hdr.encode()); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}
	for i := range packed {
		if _, err := w.Write(packed[i]); err != nil {
			return fmt.Errorf("failed to write snapshot section %d: %w", i, err)
		}
	}
	return nil
}

// Restore unpacks a snapshot stream into dbPath, recreating the three
// database files. It refuses to overwrite an existing database.
func Restore(r io.Reader, dbPath, prefix string) error {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: short header: %v", ErrInvalidSnapshot, err)
	}
	hdr, err := decodeHeader(buf)
	if err != nil {
		return err
	}

	cm, err := NewCompressionManager()
	if err != nil {
		return err
	}
	defer cm.Close()

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	for i, path := range sectionPaths(dbPath, prefix) {
		s := hdr.sections[i]
		packed := make([]byte, s.packedLen)
		if _, err := io.ReadFull(r, packed); err != nil {
			return fmt.Errorf("%w: short section %d: %v", ErrInvalidSnapshot, i, err)
		}
		raw, err := cm.Decompress(packed, hdr.codec)
		if err != nil {
			return err
		}
		if uint64(len(raw)) != s.rawLen {
			return fmt.Errorf("%w: section %d is %d bytes, want %d", ErrInvalidSnapshot, i, len(raw), s.rawLen)
		}
		if xxhash.Sum64(raw) != s.checksum {
			return fmt.Errorf("%w: section %d", ErrChecksumMismatch, i)
		}
		if err := writeNewFile(path, raw); err != nil {
			return err
		}
	}
	return nil
}

func writeNewFile(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrDatabaseExists, path)
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
