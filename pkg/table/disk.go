package table

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/xylemdb/xylem/pkg/common/log"
	"github.com/xylemdb/xylem/pkg/config"
	"github.com/xylemdb/xylem/pkg/stats"
)

// DiskTable stores the table on disk and reads it block-wise through a
// single-block buffer. The sparse index (firstPres, blockNos) maps the
// first logical position of every used block to its physical number.
//
// File layout for database directory D and prefix F:
//
//	D/F  — data file, blocks back to back
//	D/Fx — index sidecar, big-endian int32 pairs (firstPre, blockNo)
//	D/Fi — header sidecar, big-endian int32 triple (blocks, slots, records)
type DiskTable struct {
	mu sync.Mutex

	cfg *config.Config

	// derived layout
	blockSize  int
	recordSize int
	maxEntries int
	newEntries int
	nodePower  uint

	dataPath   string
	indexPath  string
	headerPath string

	bf   *blockFile
	lock *fileLock

	// the current block buffer and its physical number
	buf   []byte
	block int

	// index arrays; firstPres is sorted ascending
	firstPres []int
	blockNos  []int

	// cached window of the current block
	firstPre int
	nextPre  int
	// slot number of the current block
	index int

	// number of physical blocks in the data file, including unused ones
	nrBlocks int
	// number of records in the table
	count int

	dirty      bool
	indexDirty bool
	closed     bool

	log   log.Logger
	stats *stats.Collector
}

var _ Table = (*DiskTable)(nil)

// Option configures a DiskTable.
type Option func(*DiskTable)

// WithLogger sets the logger used by the table.
func WithLogger(logger log.Logger) Option {
	return func(t *DiskTable) {
		t.log = logger
	}
}

// WithStats sets the statistics collector fed by the table.
func WithStats(collector *stats.Collector) Option {
	return func(t *DiskTable) {
		t.stats = collector
	}
}

// Create initializes a new, empty table database: one zeroed block, one
// index slot covering it, no records. The data file must not exist.
func Create(cfg *config.Config, dbPath, prefix string, opts ...Option) (*DiskTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	data := filepath.Join(dbPath, prefix)
	bf, err := createBlockFile(data, cfg.BlockPower)
	if err != nil {
		return nil, err
	}
	if err := bf.writeBlock(0, make([]byte, cfg.BlockSize())); err != nil {
		bf.close()
		return nil, err
	}
	if err := bf.close(); err != nil {
		return nil, fmt.Errorf("failed to close data file: %w", err)
	}

	if err := writeHeaderFile(data+"i", 1, 1, 0); err != nil {
		return nil, err
	}
	if err := writeIndexFile(data+"x", []int{0}, []int{0}); err != nil {
		return nil, err
	}

	return Open(cfg, dbPath, prefix, opts...)
}

// Open opens an existing table database, loads the header and index
// sidecars, and pins the first block. The table exclusively owns the
// three files until Close.
func Open(cfg *config.Config, dbPath, prefix string, opts ...Option) (*DiskTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	data := filepath.Join(dbPath, prefix)
	lock, err := acquireLock(data + ".lock")
	if err != nil {
		return nil, err
	}

	t := &DiskTable{
		cfg:        cfg,
		blockSize:  cfg.BlockSize(),
		recordSize: cfg.RecordSize(),
		maxEntries: cfg.MaxEntries(),
		newEntries: cfg.NewEntries(),
		nodePower:  cfg.NodePower,
		dataPath:   data,
		indexPath:  data + "x",
		headerPath: data + "i",
		lock:       lock,
		block:      -1,
		log:        log.GetDefaultLogger(),
		stats:      stats.NewCollector(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := t.loadSidecars(); err != nil {
		lock.release()
		return nil, err
	}

	bf, err := openBlockFile(data, cfg.BlockPower)
	if err != nil {
		lock.release()
		return nil, err
	}
	t.bf = bf
	t.buf = make([]byte, t.blockSize)

	next := t.count
	if len(t.firstPres) > 1 {
		next = t.firstPres[1]
	}
	if err := t.readBlock(0, 0, next); err != nil {
		bf.close()
		lock.release()
		return nil, err
	}

	t.log.Debug("opened table %s: %d records in %d blocks", data, t.count, len(t.firstPres))
	return t, nil
}

func (t *DiskTable) loadSidecars() error {
	hdr, err := os.ReadFile(t.headerPath)
	if err != nil {
		return fmt.Errorf("failed to read header sidecar: %w", err)
	}
	if len(hdr) < 12 {
		return fmt.Errorf("%w: header is %d bytes", ErrCorruptHeader, len(hdr))
	}
	t.nrBlocks = int(int32(binary.BigEndian.Uint32(hdr[0:4])))
	indexSize := int(int32(binary.BigEndian.Uint32(hdr[4:8])))
	t.count = int(int32(binary.BigEndian.Uint32(hdr[8:12])))
	if indexSize < 1 || t.count < 0 || t.nrBlocks < indexSize {
		return fmt.Errorf("%w: %d blocks, %d slots, %d records",
			ErrCorruptHeader, t.nrBlocks, indexSize, t.count)
	}

	idx, err := os.ReadFile(t.indexPath)
	if err != nil {
		return fmt.Errorf("failed to read index sidecar: %w", err)
	}
	if len(idx) < 8*indexSize {
		return fmt.Errorf("%w: index is %d bytes, need %d", ErrCorruptHeader, len(idx), 8*indexSize)
	}
	t.firstPres = make([]int, indexSize)
	t.blockNos = make([]int, indexSize)
	for i := 0; i < indexSize; i++ {
		t.firstPres[i] = int(int32(binary.BigEndian.Uint32(idx[i*8:])))
		t.blockNos[i] = int(int32(binary.BigEndian.Uint32(idx[i*8+4:])))
	}
	if t.firstPres[0] != 0 {
		return fmt.Errorf("%w: first slot starts at %d", ErrCorruptIndex, t.firstPres[0])
	}
	return nil
}

// cursor positions the buffer at the block containing pre and returns
// the record's byte offset inside the buffer. The binary search is
// biased: it probes the current slot first, so sequential access stays
// on the fast path. The last slot is probed with a full window of
// maxEntries records and re-tightened to the record count afterwards.
func (t *DiskTable) cursor(pre int) (int, error) {
	fp, np := t.firstPre, t.nextPre
	if pre >= fp && pre < np {
		return (pre - fp) << t.nodePower, nil
	}

	last := len(t.firstPres) - 1
	low, high := 0, last
	mid := t.index
	for low <= high {
		if pre < fp {
			high = mid - 1
		} else if pre >= np {
			low = mid + 1
		} else {
			break
		}
		mid = (low + high) / 2
		fp = t.firstPres[mid]
		if mid == last {
			np = fp + t.maxEntries
		} else {
			np = t.firstPres[mid+1]
		}
	}
	if low > high {
		err := fmt.Errorf("%w: pre %d unresolved, %d slots, probe %d, bounds [%d,%d]",
			ErrCorruptIndex, pre, len(t.firstPres), mid, low, high)
		t.log.Error("%v", err)
		return 0, err
	}
	if mid == last {
		np = t.count
	}

	if err := t.readBlock(mid, fp, np); err != nil {
		return 0, err
	}
	return (pre - t.firstPre) << t.nodePower, nil
}

// readBlock fetches the block of slot ind into the buffer and caches
// its window [first, next). The previous buffer is written back first.
func (t *DiskTable) readBlock(ind, first, next int) error {
	b := t.blockNos[ind]
	if err := t.writeBack(); err != nil {
		return err
	}
	if b != t.block {
		if err := t.bf.readBlock(b, t.buf); err != nil {
			return err
		}
		t.stats.TrackOperation(stats.OpBlockRead)
		t.stats.TrackBytes(true, uint64(t.blockSize))
	}
	t.block = b
	t.index = ind
	t.firstPre = first
	t.nextPre = next
	return nil
}

// nextBlock advances the buffer to the following slot.
func (t *DiskTable) nextBlock() error {
	next := t.count
	if t.index+2 < len(t.firstPres) {
		next = t.firstPres[t.index+2]
	}
	return t.readBlock(t.index+1, t.nextPre, next)
}

// writeBack writes the buffer to its block if it is dirty.
func (t *DiskTable) writeBack() error {
	if !t.dirty {
		return nil
	}
	if err := t.bf.writeBlock(t.block, t.buf); err != nil {
		return err
	}
	t.stats.TrackOperation(stats.OpBlockWrite)
	t.stats.TrackBytes(false, uint64(t.blockSize))
	t.dirty = false
	return nil
}

// allocBlock turns the buffer into a fresh physical block. The caller
// must fill it; the buffer content is undefined until then.
func (t *DiskTable) allocBlock() error {
	if err := t.writeBack(); err != nil {
		return err
	}
	t.block = t.nrBlocks
	t.nrBlocks++
	t.dirty = true
	t.stats.TrackOperation(stats.OpBlockAlloc)
	return nil
}

// moveRecords copies n records between record positions, possibly
// within the same buffer.
func (t *DiskTable) moveRecords(dst []byte, dstPos int, src []byte, srcPos, n int) {
	p := t.nodePower
	copy(dst[dstPos<<p:(dstPos+n)<<p], src[srcPos<<p:(srcPos+n)<<p])
}

func (t *DiskTable) checkAccess(pre, off, width int) error {
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

// Read1 reads one byte of record pre at byte offset off.
func (t *DiskTable) Read1(pre, off int) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 1); err != nil {
		return 0, err
	}
	o, err := t.cursor(pre)
	if err != nil {
		return 0, err
	}
	t.stats.TrackOperation(stats.OpRead)
	return uint32(t.buf[o+off]), nil
}

// Read2 reads a 2-byte value of record pre at byte offset off.
func (t *DiskTable) Read2(pre, off int) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 2); err != nil {
		return 0, err
	}
	o, err := t.cursor(pre)
	if err != nil {
		return 0, err
	}
	t.stats.TrackOperation(stats.OpRead)
	return uint32(binary.BigEndian.Uint16(t.buf[o+off:])), nil
}

// Read4 reads a 4-byte value of record pre at byte offset off.
func (t *DiskTable) Read4(pre, off int) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 4); err != nil {
		return 0, err
	}
	o, err := t.cursor(pre)
	if err != nil {
		return 0, err
	}
	t.stats.TrackOperation(stats.OpRead)
	return binary.BigEndian.Uint32(t.buf[o+off:]), nil
}

// Read5 reads a 5-byte value of record pre at byte offset off.
func (t *DiskTable) Read5(pre, off int) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 5); err != nil {
		return 0, err
	}
	o, err := t.cursor(pre)
	if err != nil {
		return 0, err
	}
	t.stats.TrackOperation(stats.OpRead)
	return uint64(t.buf[o+off])<<32 |
		uint64(binary.BigEndian.Uint32(t.buf[o+off+1:])), nil
}

// Write1 stores one byte of record pre at byte offset off.
func (t *DiskTable) Write1(pre, off int, v uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 1); err != nil {
		return err
	}
	o, err := t.cursor(pre)
	if err != nil {
		return err
	}
	t.buf[o+off] = byte(v)
	t.dirty = true
	t.stats.TrackOperation(stats.OpWrite)
	return nil
}

// Write2 stores a 2-byte value of record pre at byte offset off.
func (t *DiskTable) Write2(pre, off int, v uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 2); err != nil {
		return err
	}
	o, err := t.cursor(pre)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(t.buf[o+off:], uint16(v))
	t.dirty = true
	t.stats.TrackOperation(stats.OpWrite)
	return nil
}

// Write4 stores a 4-byte value of record pre at byte offset off.
func (t *DiskTable) Write4(pre, off int, v uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 4); err != nil {
		return err
	}
	o, err := t.cursor(pre)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(t.buf[o+off:], v)
	t.dirty = true
	t.stats.TrackOperation(stats.OpWrite)
	return nil
}

// Write5 stores a 5-byte value of record pre at byte offset off.
func (t *DiskTable) Write5(pre, off int, v uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkAccess(pre, off, 5); err != nil {
		return err
	}
	o, err := t.cursor(pre)
	if err != nil {
		return err
	}
	t.buf[o+off] = byte(v >> 32)
	binary.BigEndian.PutUint32(t.buf[o+off+1:], uint32(v))
	t.dirty = true
	t.stats.TrackOperation(stats.OpWrite)
	return nil
}

// Delete removes the nr records starting at position first.
// Blocks emptied entirely disappear from the index, except that the
// index always keeps one slot; their physical block numbers are not
// reclaimed.
func (t *DiskTable) Delete(first, nr int) error {
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

	t.indexDirty = true
	t.stats.TrackOperation(stats.OpDelete)
	if _, err := t.cursor(first); err != nil {
		return err
	}

	from := first - t.firstPre
	last := first + nr - 1

	// all doomed records live in the current block
	if last < t.nextPre {
		t.dirty = true
		t.moveRecords(t.buf, from, t.buf, from+nr, t.nextPre-last-1)
		t.updatePre(nr)
		return t.pruneEmptySlot()
	}

	// count the blocks dropped in their entirety, walking to the block
	// holding the end of the range
	unused := 0
	for t.nextPre <= last {
		if from == 0 {
			unused++
		}
		if err := t.nextBlock(); err != nil {
			return err
		}
		from = 0
	}
	if unused > 0 {
		i := t.index
		t.firstPres = append(t.firstPres[:i-unused], t.firstPres[i:]...)
		t.blockNos = append(t.blockNos[:i-unused], t.blockNos[i:]...)
		t.index -= unused
	}

	// drop the leading records of the final block
	t.dirty = true
	t.moveRecords(t.buf, 0, t.buf, last-t.firstPre+1, t.nextPre-last-1)
	t.firstPres[t.index] = first
	t.firstPre = first
	t.updatePre(nr)
	return t.pruneEmptySlot()
}

// updatePre shifts the windows of all following slots down by nr and
// re-derives the current block's upper bound.
func (t *DiskTable) updatePre(nr int) {
	for i := t.index + 1; i < len(t.firstPres); i++ {
		t.firstPres[i] -= nr
	}
	t.count -= nr
	t.nextPre = t.count
	if t.index+1 < len(t.firstPres) {
		t.nextPre = t.firstPres[t.index+1]
	}
}

// pruneEmptySlot removes the current slot from the index if its window
// became empty, then re-pins the slot now covering that position. The
// final slot is never pruned below one entry so that an empty table
// keeps a current block.
func (t *DiskTable) pruneEmptySlot() error {
	if t.nextPre != t.firstPre || len(t.firstPres) <= 1 {
		return nil
	}
	i := t.index
	t.firstPres = append(t.firstPres[:i], t.firstPres[i+1:]...)
	t.blockNos = append(t.blockNos[:i], t.blockNos[i+1:]...)
	if i >= len(t.firstPres) {
		i = len(t.firstPres) - 1
	}
	next := t.count
	if i+1 < len(t.firstPres) {
		next = t.firstPres[i+1]
	}
	return t.readBlock(i, t.firstPres[i], next)
}

// Insert inserts the given records after position pre; pre = -1 inserts
// at the very beginning. If the records do not fit into the current
// block, the payload spills into fresh blocks filled to the configured
// fill factor, leaving headroom for later in-place inserts.
func (t *DiskTable) Insert(pre int, entries []byte) error {
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

	t.indexDirty = true
	t.stats.TrackOperation(stats.OpInsert)

	if t.count == 0 {
		t.count = nr
		return t.bulkLoad(entries, nr)
	}

	// the block holding position 0 is always slot 0 with firstPre 0, so
	// the offset algebra below holds for pre = -1 as well
	seek := pre
	if seek < 0 {
		seek = 0
	}
	if _, err := t.cursor(seek); err != nil {
		return err
	}
	t.count += nr

	ins := pre - t.firstPre + 1

	// all records fit into the current block
	if nr < t.maxEntries-t.nextPre+t.firstPre {
		t.dirty = true
		t.moveRecords(t.buf, ins+nr, t.buf, ins, t.nextPre-pre-1)
		t.moveRecords(t.buf, ins, entries, 0, nr)

		for i := t.index + 1; i < len(t.firstPres); i++ {
			t.firstPres[i] += nr
		}
		t.nextPre += nr
		return nil
	}

	// save the tail of the current block, to be re-homed after the
	// inserted records
	move := t.nextPre - pre - 1
	rest := make([]byte, move<<t.nodePower)
	t.moveRecords(rest, 0, t.buf, ins, move)

	newBlocks := (nr+t.newEntries-1)/t.newEntries + 1
	// insertion at the block boundary leaves no tail
	if pre == t.nextPre-1 {
		newBlocks--
	}

	// a front insert (pre = -1) empties the original block's window;
	// the first chunk replaces its slot, leaking the physical block
	grow := newBlocks
	if ins == 0 {
		grow--
	}

	oldLen := len(t.firstPres)
	t.firstPres = append(t.firstPres, make([]int, grow)...)
	t.blockNos = append(t.blockNos, make([]int, grow)...)
	copy(t.firstPres[t.index+1+grow:], t.firstPres[t.index+1:oldLen])
	copy(t.blockNos[t.index+1+grow:], t.blockNos[t.index+1:oldLen])
	if ins == 0 {
		t.index--
	}

	// spill the payload into fresh, partially filled blocks
	remain, pos := nr, 0
	for remain > 0 {
		if err := t.allocBlock(); err != nil {
			return err
		}
		t.moveRecords(t.buf, 0, entries, pos, min(remain, t.newEntries))
		t.index++
		t.firstPres[t.index] = nr - remain + pre + 1
		t.blockNos[t.index] = t.block
		remain -= t.newEntries
		pos += t.newEntries
	}

	// re-home the saved tail into one more block
	if move > 0 {
		if err := t.allocBlock(); err != nil {
			return err
		}
		t.moveRecords(t.buf, 0, rest, 0, move)
		t.index++
		t.firstPres[t.index] = pre + nr + 1
		t.blockNos[t.index] = t.block
	}

	for i := t.index + 1; i < len(t.firstPres); i++ {
		t.firstPres[i] += nr
	}
	t.firstPre = t.firstPres[t.index]
	t.nextPre = t.count
	if t.index+1 < len(t.firstPres) {
		t.nextPre = t.firstPres[t.index+1]
	}
	return nil
}

// bulkLoad fills an empty table from position 0. The single empty slot
// is rebuilt from scratch; the first chunk reuses the current block.
func (t *DiskTable) bulkLoad(entries []byte, nr int) error {
	t.firstPres = t.firstPres[:0]
	t.blockNos = t.blockNos[:0]
	t.index = -1

	first := true
	remain, pos := nr, 0
	for remain > 0 {
		if first {
			t.dirty = true
		} else if err := t.allocBlock(); err != nil {
			return err
		}
		t.moveRecords(t.buf, 0, entries, pos, min(remain, t.newEntries))
		t.index++
		t.firstPres = append(t.firstPres, nr-remain)
		t.blockNos = append(t.blockNos, t.block)
		first = false
		remain -= t.newEntries
		pos += t.newEntries
	}

	t.firstPre = t.firstPres[t.index]
	t.nextPre = t.count
	return nil
}

// Size returns the number of records in the table.
func (t *DiskTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Blocks returns the number of used blocks.
func (t *DiskTable) Blocks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.firstPres)
}

// Flush writes back the buffer and, if the index changed, persists the
// index and header sidecars.
func (t *DiskTable) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTableClosed
	}
	return t.flushLocked()
}

func (t *DiskTable) flushLocked() error {
	if err := t.writeBack(); err != nil {
		return err
	}
	if !t.indexDirty {
		return nil
	}

	if err := writeIndexFile(t.indexPath, t.firstPres, t.blockNos); err != nil {
		return err
	}
	if err := writeHeaderFile(t.headerPath, t.nrBlocks, len(t.firstPres), t.count); err != nil {
		return err
	}
	t.indexDirty = false
	t.stats.TrackOperation(stats.OpFlush)
	t.log.Debug("flushed table %s: %d records in %d blocks", t.dataPath, t.count, len(t.firstPres))
	return nil
}

// Close flushes the table and releases the data file and the lock. On a
// flush failure the table stays open so the caller can retry.
func (t *DiskTable) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if err := t.flushLocked(); err != nil {
		return err
	}
	if err := t.bf.close(); err != nil {
		return fmt.Errorf("failed to close data file: %w", err)
	}
	t.closed = true
	return t.lock.release()
}

// Checksum writes back the buffer and returns an xxhash64 digest over
// the live records of all blocks in index order.
func (t *DiskTable) Checksum() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTableClosed
	}
	if err := t.writeBack(); err != nil {
		return 0, err
	}

	digest := xxhash.New()
	tmp := make([]byte, t.blockSize)
	for i := range t.firstPres {
		next := t.count
		if i+1 < len(t.firstPres) {
			next = t.firstPres[i+1]
		}
		if err := t.bf.readBlock(t.blockNos[i], tmp); err != nil {
			return 0, err
		}
		live := next - t.firstPres[i]
		digest.Write(tmp[:live<<t.nodePower])
	}
	return digest.Sum64(), nil
}

func writeIndexFile(path string, firstPres, blockNos []int) error {
	buf := make([]byte, 8*len(firstPres))
	for i := range firstPres {
		binary.BigEndian.PutUint32(buf[i*8:], uint32(int32(firstPres[i])))
		binary.BigEndian.PutUint32(buf[i*8+4:], uint32(int32(blockNos[i])))
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write index sidecar: %w", err)
	}
	return nil
}

func writeHeaderFile(path string, nrBlocks, indexSize, count int) error {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], uint32(int32(nrBlocks)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(indexSize)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(int32(count)))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write header sidecar: %w", err)
	}
	return nil
}
