package table

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/xylemdb/xylem/pkg/config"
)

// MemTable is the memory-resident table backend: the same record
// semantics as DiskTable, held in one flat, growable byte slice. It is
// used for throwaway trees and as a reference in tests; Flush is a
// no-op and nothing survives Close.
type MemTable struct {
	mu sync.Mutex

	recordSize int
	maxEntries int
	nodePower  uint

	data   []byte
	count  int
	closed bool
}

var _ Table = (*MemTable)(nil)

// NewMemTable creates an empty memory-resident table.
func NewMemTable(cfg *config.Config) (*MemTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemTable{
		recordSize: cfg.RecordSize(),
		maxEntries: cfg.MaxEntries(),
		nodePower:  cfg.NodePower,
	}, nil
}

func (t *MemTable) checkAccess(pre, off, width int) error {
	if t.closed {
		return ErrTableClosed
	}
	if pre < 0 || pre >= t.count {
		return fmt.Errorf("%w: pre %d, size %d", ErrOutOfRange, pre, t.count)
	}
	if off < 0 || off+width > t.recordSize {
		return fmt.Errorf("%w: offset %d, width %d, record size %d",
			ErrOutOfRange, off, width, t.recordSize)
	}
	return nil
}

func (t *MemTable) pos(pre, off int) int {
	return pre<<t.nodePower + off
}

// Read1 reads one byte of record pre at byte offset off.
func (t *MemTable) Read1(pre, off int) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 1); err != nil {
		return 0, err
	}
	return uint32(t.data[t.pos(pre, off)]), nil
}

// Read2 reads a 2-byte value of record pre at byte offset off.
func (t *MemTable) Read2(pre, off int) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 2); err != nil {
		return 0, err
	}
	return uint32(binary.BigEndian.Uint16(t.data[t.pos(pre, off):])), nil
}

// Read4 reads a 4-byte value of record pre at byte offset off.
func (t *MemTable) Read4(pre, off int) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(t.data[t.pos(pre, off):]), nil
}

// Read5 reads a 5-byte value of record pre at byte offset off.
func (t *MemTable) Read5(pre, off int) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 5); err != nil {
		return 0, err
	}
	o := t.pos(pre, off)
	return uint64(t.data[o])<<32 |
		uint64(binary.BigEndian.Uint32(t.data[o+1:])), nil
}

// Write1 stores one byte of record pre at byte offset off.
func (t *MemTable) Write1(pre, off int, v uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 1); err != nil {
		return err
	}
	t.data[t.pos(pre, off)] = byte(v)
	return nil
}

// Write2 stores a 2-byte value of record pre at byte offset off.
func (t *MemTable) Write2(pre, off int, v uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(t.data[t.pos(pre, off):], uint16(v))
	return nil
}

// Write4 stores a 4-byte value of record pre at byte offset off.
func (t *MemTable) Write4(pre, off int, v uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(t.data[t.pos(pre, off):], v)
	return nil
}

// Write5 stores a 5-byte value of record pre at byte offset off.
func (t *MemTable) Write5(pre, off int, v uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 5); err != nil {
		return err
	}
	o := t.pos(pre, off)
	t.data[o] = byte(v >> 32)
	binary.BigEndian.PutUint32(t.data[o+1:], uint32(v))
	return nil
}

// Insert inserts the given records after position pre.
func (t *MemTable) Insert(pre int, entries []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTableClosed
	}
	if len(entries)%t.recordSize != 0 {
		return fmt.Errorf("%w: %d bytes, record size %d", ErrMisalignedPayload, len(entries), t.recordSize)
	}
	nr := len(entries) >> t.nodePower
	if nr == 0 {
		return nil
	}
	if pre < -1 || pre >= t.count {
		return fmt.Errorf("%w: insert after %d, size %d", ErrOutOfRange, pre, t.count)
	}

	at := (pre + 1) << t.nodePower
	grown := make([]byte, len(t.data)+len(entries))
	copy(grown, t.data[:at])
	copy(grown[at:], entries)
	copy(grown[at+len(entries):], t.data[at:])
	t.data = grown
	t.count += nr
	return nil
}

// Delete removes the nr records starting at position first.
func (t *MemTable) Delete(first, nr int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTableClosed
	}
	if nr == 0 {
		return nil
	}
	if first < 0 || nr < 0 || first+nr > t.count {
		return fmt.Errorf("%w: delete [%d,%d), size %d", ErrOutOfRange, first, first+nr, t.count)
	}

	from := first << t.nodePower
	to := (first + nr) << t.nodePower
	t.data = append(t.data[:from], t.data[to:]...)
	t.count -= nr
	return nil
}

// Size returns the number of records in the table.
func (t *MemTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Blocks returns the number of blocks an equivalent packed on-disk
// table would use; at least one, mirroring the disk layout convention.
func (t *MemTable) Blocks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	blocks := (t.count + t.maxEntries - 1) / t.maxEntries
	if blocks < 1 {
		blocks = 1
	}
	return blocks
}

// Flush is a no-op; the table has no backing files.
func (t *MemTable) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTableClosed
	}
	return nil
}

// Close releases the table. The records are discarded.
func (t *MemTable) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.data = nil
	return nil
}

// Checksum returns an xxhash64 digest over all records.
func (t *MemTable) Checksum() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTableClosed
	}
	return xxhash.Sum64(t.data), nil
}
