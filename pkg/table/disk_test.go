package table

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/xylemdb/xylem/pkg/config"
)

// The scenario layout: 64-byte blocks of four 16-byte records, fresh
// blocks half filled on split.
func testConfig() *config.Config {
	return &config.Config{
		Version:    config.CurrentManifestVersion,
		BlockPower: 6,
		NodePower:  4,
		FillFactor: 0.5,
	}
}

func newTestTable(t *testing.T) *DiskTable {
	t.Helper()
	tbl, err := Create(testConfig(), t.TempDir(), "tbl")
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

// rec builds one record tagged in its first byte.
func rec(tag byte) []byte {
	r := make([]byte, 16)
	r[0] = tag
	return r
}

func recs(tags ...byte) []byte {
	var out []byte
	for _, tag := range tags {
		out = append(out, rec(tag)...)
	}
	return out
}

func readTags(t *testing.T, tbl Table) []byte {
	t.Helper()
	tags := make([]byte, tbl.Size())
	for pre := range tags {
		v, err := tbl.Read1(pre, 0)
		if err != nil {
			t.Fatalf("Failed to read record %d: %v", pre, err)
		}
		tags[pre] = byte(v)
	}
	return tags
}

func expectTags(t *testing.T, tbl Table, want string) {
	t.Helper()
	got := string(readTags(t, tbl))
	if got != want {
		t.Errorf("Record tags = %q, want %q", got, want)
	}
}

// checkInvariants verifies the index invariants that must hold after
// any sequence of operations.
func checkInvariants(t *testing.T, tbl *DiskTable) {
	t.Helper()

	size := len(tbl.firstPres)
	if size < 1 {
		t.Fatalf("Index is empty")
	}
	if tbl.firstPres[0] != 0 {
		t.Errorf("First slot starts at %d, want 0", tbl.firstPres[0])
	}
	seen := make(map[int]bool, size)
	for i := 0; i < size; i++ {
		next := tbl.count
		if i+1 < size {
			next = tbl.firstPres[i+1]
		}
		if i+1 < size && next <= tbl.firstPres[i] {
			t.Errorf("Slot %d window [%d,%d) is not ascending", i, tbl.firstPres[i], next)
		}
		if next-tbl.firstPres[i] > tbl.maxEntries {
			t.Errorf("Slot %d holds %d records, max %d", i, next-tbl.firstPres[i], tbl.maxEntries)
		}
		b := tbl.blockNos[i]
		if b < 0 || b >= tbl.nrBlocks {
			t.Errorf("Slot %d references block %d outside [0,%d)", i, b, tbl.nrBlocks)
		}
		if seen[b] {
			t.Errorf("Block %d referenced twice", b)
		}
		seen[b] = true
	}
	if tbl.count > 0 && tbl.firstPres[size-1] >= tbl.count {
		t.Errorf("Last slot starts at %d, beyond %d records", tbl.firstPres[size-1], tbl.count)
	}
	if tbl.count > 0 {
		fp := tbl.firstPres[tbl.index]
		if tbl.firstPre != fp {
			t.Errorf("Cached firstPre %d, slot says %d", tbl.firstPre, fp)
		}
	}
}

// S1: bulk insert into an empty table, then read everything back.
func TestBulkInsertThenRead(t *testing.T) {
	tbl := newTestTable(t)

	if err := tbl.Insert(-1, recs('a', 'b', 'c', 'd', 'e')); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	if tbl.Size() != 5 {
		t.Errorf("Size = %d, want 5", tbl.Size())
	}
	if tbl.Blocks() < 2 {
		t.Errorf("Blocks = %d, want >= 2", tbl.Blocks())
	}
	expectTags(t, tbl, "abcde")
	checkInvariants(t, tbl)
}

// S2: point write, flush, reopen; the write must survive.
func TestPointWriteFlushReopen(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()

	tbl, err := Create(cfg, dir, "tbl")
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	if err := tbl.Insert(-1, recs('a', 'b', 'c', 'd', 'e')); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := tbl.Write1(2, 0, 'Z'); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := tbl.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
	if tbl.dirty || tbl.indexDirty {
		t.Errorf("Dirty flags survived flush: buffer %v, index %v", tbl.dirty, tbl.indexDirty)
	}
	sum, err := tbl.Checksum()
	if err != nil {
		t.Fatalf("Failed to checksum: %v", err)
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	reopened, err := Open(cfg, dir, "tbl")
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer reopened.Close()

	expectTags(t, reopened, "abZde")
	sum2, err := reopened.Checksum()
	if err != nil {
		t.Fatalf("Failed to checksum: %v", err)
	}
	if sum != sum2 {
		t.Errorf("Checksum changed across reopen: %x != %x", sum, sum2)
	}
	checkInvariants(t, reopened)
}

// S3: delete a range spanning a block boundary.
func TestDeleteAcrossBlocks(t *testing.T) {
	tbl := newTestTable(t)

	if err := tbl.Insert(-1, recs('a', 'b', 'c', 'd', 'e')); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	blocksBefore := tbl.Blocks()

	if err := tbl.Delete(1, 3); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	if tbl.Size() != 2 {
		t.Errorf("Size = %d, want 2", tbl.Size())
	}
	expectTags(t, tbl, "ae")
	// the middle block lost every record and leaves the index
	if tbl.Blocks() != blocksBefore-1 {
		t.Errorf("Blocks = %d, want %d", tbl.Blocks(), blocksBefore-1)
	}
	checkInvariants(t, tbl)
}

// S4: insertion after the last record of a block that cannot take the
// payload in place spills into exactly one new block; there is no tail
// to re-home.
func TestInsertAtBlockBoundary(t *testing.T) {
	tbl := newTestTable(t)

	if err := tbl.Insert(-1, recs(1, 1, 1, 1)); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	blocksBefore := tbl.nrBlocks

	if err := tbl.Insert(3, recs(2, 2)); err != nil {
		t.Fatalf("Failed to insert at boundary: %v", err)
	}

	if got := tbl.nrBlocks - blocksBefore; got != 1 {
		t.Errorf("Allocated %d blocks, want 1", got)
	}
	expectTags(t, tbl, "\x01\x01\x01\x01\x02\x02")
	checkInvariants(t, tbl)
}

// S5: a mid-block insert that does not fit splits the block and
// re-homes the displaced suffix into a tail block.
func TestInsertSpill(t *testing.T) {
	tbl := newTestTable(t)

	if err := tbl.Insert(-1, recs(1, 1, 1, 1)); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := tbl.Insert(3, recs(2, 2)); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	blocksBefore := tbl.Blocks()

	// five records after position 0 displace the rest of the first block
	if err := tbl.Insert(0, recs(9, 9, 9, 9, 9)); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	expectTags(t, tbl, "\x01\x09\x09\x09\x09\x09\x01\x01\x01\x02\x02")
	// ceil(5/2) payload blocks plus the tail block
	if got := tbl.Blocks() - blocksBefore; got != 4 {
		t.Errorf("Index grew by %d slots, want 4", got)
	}
	checkInvariants(t, tbl)
}

// S6: deleting exactly one whole block prunes its index slot but keeps
// the physical block count.
func TestEmptyBlockPruning(t *testing.T) {
	tbl := newTestTable(t)

	// three blocks of two records each
	if err := tbl.Insert(-1, recs('a', 'b', 'c', 'd', 'e', 'f')); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if tbl.Blocks() != 3 {
		t.Fatalf("Blocks = %d, want 3", tbl.Blocks())
	}
	middleBlock := tbl.blockNos[1]
	physBefore := tbl.nrBlocks

	if err := tbl.Delete(2, 2); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	if tbl.Size() != 4 {
		t.Errorf("Size = %d, want 4", tbl.Size())
	}
	if tbl.Blocks() != 2 {
		t.Errorf("Blocks = %d, want 2", tbl.Blocks())
	}
	if tbl.firstPres[0] != 0 || tbl.firstPres[1] != 2 {
		t.Errorf("firstPres = %v, want [0 2]", tbl.firstPres)
	}
	for _, b := range tbl.blockNos {
		if b == middleBlock {
			t.Errorf("Pruned block %d still referenced", middleBlock)
		}
	}
	// the freed block number is leaked, not reclaimed
	if tbl.nrBlocks != physBefore {
		t.Errorf("Physical block count changed: %d -> %d", physBefore, tbl.nrBlocks)
	}
	expectTags(t, tbl, "abef")
	checkInvariants(t, tbl)
}

func TestInsertBeforeFirst(t *testing.T) {
	tbl := newTestTable(t)

	if err := tbl.Insert(-1, recs('b')); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := tbl.Insert(-1, recs('a')); err != nil {
		t.Fatalf("Failed to insert before first: %v", err)
	}

	expectTags(t, tbl, "ab")
	checkInvariants(t, tbl)
}

// A front insert that does not fit replaces the original slot: the
// first chunk takes over position 0 and the displaced records move to
// the tail block.
func TestFrontInsertSpill(t *testing.T) {
	tbl := newTestTable(t)

	if err := tbl.Insert(-1, recs('a', 'b')); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := tbl.Insert(-1, recs('1', '2', '3', '4', '5')); err != nil {
		t.Fatalf("Failed to insert at front: %v", err)
	}

	expectTags(t, tbl, "12345ab")
	if tbl.Blocks() != 4 {
		t.Errorf("Blocks = %d, want 4", tbl.Blocks())
	}
	checkInvariants(t, tbl)
}

func TestDeleteEverything(t *testing.T) {
	tbl := newTestTable(t)

	if err := tbl.Insert(-1, recs('a', 'b', 'c', 'd', 'e', 'f')); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := tbl.Delete(0, 6); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	if tbl.Size() != 0 {
		t.Errorf("Size = %d, want 0", tbl.Size())
	}
	if tbl.Blocks() != 1 {
		t.Errorf("Blocks = %d, want 1", tbl.Blocks())
	}
	checkInvariants(t, tbl)

	// the table is usable again
	if err := tbl.Insert(-1, recs('x', 'y')); err != nil {
		t.Fatalf("Failed to refill: %v", err)
	}
	expectTags(t, tbl, "xy")
	checkInvariants(t, tbl)
}

func TestReadWriteWidths(t *testing.T) {
	tbl := newTestTable(t)
	if err := tbl.Insert(-1, recs(0, 0)); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	if err := tbl.Write2(0, 0, 0xBEEF); err != nil {
		t.Fatalf("Failed to write2: %v", err)
	}
	if err := tbl.Write4(0, 4, 0xCAFEBABE); err != nil {
		t.Fatalf("Failed to write4: %v", err)
	}
	if err := tbl.Write5(1, 8, 0x12_3456789A); err != nil {
		t.Fatalf("Failed to write5: %v", err)
	}

	if v, _ := tbl.Read2(0, 0); v != 0xBEEF {
		t.Errorf("Read2 = %#x, want 0xbeef", v)
	}
	if v, _ := tbl.Read4(0, 4); v != 0xCAFEBABE {
		t.Errorf("Read4 = %#x, want 0xcafebabe", v)
	}
	if v, _ := tbl.Read5(1, 8); v != 0x12_3456789A {
		t.Errorf("Read5 = %#x, want 0x123456789a", v)
	}

	// big-endian byte order inside the record
	if hi, _ := tbl.Read1(0, 0); hi != 0xBE {
		t.Errorf("Read1 high byte = %#x, want 0xbe", hi)
	}
	if lo, _ := tbl.Read1(0, 1); lo != 0xEF {
		t.Errorf("Read1 low byte = %#x, want 0xef", lo)
	}
	if hi, _ := tbl.Read1(1, 8); hi != 0x12 {
		t.Errorf("Read5 high byte = %#x, want 0x12", hi)
	}
}

func TestPreconditions(t *testing.T) {
	tbl := newTestTable(t)
	if err := tbl.Insert(-1, recs('a', 'b')); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	if _, err := tbl.Read1(2, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Read beyond end: %v, want ErrOutOfRange", err)
	}
	if _, err := tbl.Read1(-1, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Read at -1: %v, want ErrOutOfRange", err)
	}
	if _, err := tbl.Read4(0, 13); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Read4 crossing record end: %v, want ErrOutOfRange", err)
	}
	if err := tbl.Write1(5, 0, 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Write beyond end: %v, want ErrOutOfRange", err)
	}
	if err := tbl.Insert(0, []byte{1, 2, 3}); !errors.Is(err, ErrMisalignedPayload) {
		t.Errorf("Misaligned insert: %v, want ErrMisalignedPayload", err)
	}
	if err := tbl.Insert(2, rec('x')); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Insert after end: %v, want ErrOutOfRange", err)
	}
	if err := tbl.Delete(1, 2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Delete beyond end: %v, want ErrOutOfRange", err)
	}
}

func TestClosedTable(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	tbl, err := Create(cfg, dir, "tbl")
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	if _, err := tbl.Read1(0, 0); !errors.Is(err, ErrTableClosed) {
		t.Errorf("Read on closed table: %v, want ErrTableClosed", err)
	}
	if err := tbl.Insert(-1, rec(1)); !errors.Is(err, ErrTableClosed) {
		t.Errorf("Insert on closed table: %v, want ErrTableClosed", err)
	}
	if err := tbl.Flush(); !errors.Is(err, ErrTableClosed) {
		t.Errorf("Flush on closed table: %v, want ErrTableClosed", err)
	}
	// closing twice is fine
	if err := tbl.Close(); err != nil {
		t.Errorf("Second close: %v", err)
	}
}

func TestOpenLocked(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	tbl, err := Create(cfg, dir, "tbl")
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	defer tbl.Close()

	if _, err := Open(cfg, dir, "tbl"); !errors.Is(err, ErrTableLocked) {
		t.Errorf("Second open: %v, want ErrTableLocked", err)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(testConfig(), t.TempDir(), "tbl"); err == nil {
		t.Errorf("Open of missing database succeeded")
	}
}

func TestOpenTruncatedHeader(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	tbl, err := Create(cfg, dir, "tbl")
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	if err := os.Truncate(filepath.Join(dir, "tbli"), 7); err != nil {
		t.Fatalf("Failed to truncate header: %v", err)
	}

	if _, err := Open(cfg, dir, "tbl"); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("Open with truncated header: %v, want ErrCorruptHeader", err)
	}
}

// TestRandomizedAgainstModel drives the disk table and the memory
// backend with the same operation stream and verifies they never
// disagree; the index invariants are checked after every step.
func TestRandomizedAgainstModel(t *testing.T) {
	disk := newTestTable(t)
	model, err := NewMemTable(testConfig())
	if err != nil {
		t.Fatalf("Failed to create model: %v", err)
	}

	rnd := rand.New(rand.NewSource(1))
	inserted, deleted := 0, 0

	for step := 0; step < 600; step++ {
		size := disk.Size()
		if size != model.Size() {
			t.Fatalf("Step %d: sizes diverged, disk %d, model %d", step, size, model.Size())
		}

		switch op := rnd.Intn(10); {
		case op < 4: // insert 1..9 records after a random position
			nr := 1 + rnd.Intn(9)
			payload := make([]byte, nr*16)
			rnd.Read(payload)
			pre := rnd.Intn(size+1) - 1
			if err := disk.Insert(pre, payload); err != nil {
				t.Fatalf("Step %d: disk insert after %d: %v", step, pre, err)
			}
			if err := model.Insert(pre, payload); err != nil {
				t.Fatalf("Step %d: model insert after %d: %v", step, pre, err)
			}
			inserted += nr
		case op < 7 && size > 0: // delete a random range
			first := rnd.Intn(size)
			nr := 1 + rnd.Intn(size-first)
			if err := disk.Delete(first, nr); err != nil {
				t.Fatalf("Step %d: disk delete [%d,%d): %v", step, first, first+nr, err)
			}
			if err := model.Delete(first, nr); err != nil {
				t.Fatalf("Step %d: model delete: %v", step, err)
			}
			deleted += nr
		case op < 9 && size > 0: // point write
			pre := rnd.Intn(size)
			off := rnd.Intn(12)
			v := rnd.Uint32()
			if err := disk.Write4(pre, off, v); err != nil {
				t.Fatalf("Step %d: disk write: %v", step, err)
			}
			if err := model.Write4(pre, off, v); err != nil {
				t.Fatalf("Step %d: model write: %v", step, err)
			}
		case op == 9 && step%3 == 0:
			if err := disk.Flush(); err != nil {
				t.Fatalf("Step %d: flush: %v", step, err)
			}
		}

		checkInvariants(t, disk)

		if size := disk.Size(); size > 0 {
			pre := rnd.Intn(size)
			dv, err := disk.Read5(pre, 3)
			if err != nil {
				t.Fatalf("Step %d: disk read: %v", step, err)
			}
			mv, err := model.Read5(pre, 3)
			if err != nil {
				t.Fatalf("Step %d: model read: %v", step, err)
			}
			if dv != mv {
				t.Fatalf("Step %d: record %d diverged: disk %x, model %x", step, pre, dv, mv)
			}
		}
	}

	if got := disk.Size(); got != inserted-deleted {
		t.Errorf("Size = %d, inserted %d - deleted %d = %d", got, inserted, deleted, inserted-deleted)
	}

	// both backends hash their live records identically
	dsum, err := disk.Checksum()
	if err != nil {
		t.Fatalf("Failed to checksum disk table: %v", err)
	}
	msum, err := model.Checksum()
	if err != nil {
		t.Fatalf("Failed to checksum model: %v", err)
	}
	if dsum != msum {
		t.Errorf("Checksums diverged: disk %x, model %x", dsum, msum)
	}
}

// TestReopenRandomized verifies that flush+reopen reproduces the same
// externally observable state after a random workload.
func TestReopenRandomized(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	tbl, err := Create(cfg, dir, "tbl")
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	rnd := rand.New(rand.NewSource(7))
	for step := 0; step < 100; step++ {
		size := tbl.Size()
		if size == 0 || rnd.Intn(3) > 0 {
			nr := 1 + rnd.Intn(6)
			payload := make([]byte, nr*16)
			rnd.Read(payload)
			if err := tbl.Insert(rnd.Intn(size+1)-1, payload); err != nil {
				t.Fatalf("Step %d: insert: %v", step, err)
			}
		} else {
			first := rnd.Intn(size)
			if err := tbl.Delete(first, 1+rnd.Intn(size-first)); err != nil {
				t.Fatalf("Step %d: delete: %v", step, err)
			}
		}
	}

	before := readTags(t, tbl)
	sum, err := tbl.Checksum()
	if err != nil {
		t.Fatalf("Failed to checksum: %v", err)
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	reopened, err := Open(cfg, dir, "tbl")
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer reopened.Close()

	after := readTags(t, reopened)
	if string(before) != string(after) {
		t.Errorf("Records changed across reopen")
	}
	sum2, err := reopened.Checksum()
	if err != nil {
		t.Fatalf("Failed to checksum: %v", err)
	}
	if sum != sum2 {
		t.Errorf("Checksum changed across reopen: %x != %x", sum, sum2)
	}
	checkInvariants(t, reopened)
}
