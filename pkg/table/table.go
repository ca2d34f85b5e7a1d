// Package table implements the paged table storage engine that backs a
// native XML database: a dense, mutable array of fixed-size records, one
// per tree node in pre-order. Records live in fixed-size blocks; a sparse
// sorted index maps logical record positions to physical block numbers so
// that bulk insertion and deletion never rewrite unaffected pages.
package table

// Table is the capability interface of a record table. Positions (pre)
// are dense: deletion renumbers all following records. Multi-byte values
// are big-endian, both in the API and on disk.
//
// Implementations serialize all operations internally; at most one writer
// is supported.
type Table interface {
	// Read1 reads one byte of record pre at byte offset off.
	Read1(pre, off int) (uint32, error)
	// Read2 reads a 2-byte value of record pre at byte offset off.
	Read2(pre, off int) (uint32, error)
	// Read4 reads a 4-byte value of record pre at byte offset off.
	Read4(pre, off int) (uint32, error)
	// Read5 reads a 5-byte value of record pre at byte offset off.
	Read5(pre, off int) (uint64, error)

	// Write1 stores one byte of record pre at byte offset off.
	Write1(pre, off int, v uint32) error
	// Write2 stores a 2-byte value of record pre at byte offset off.
	Write2(pre, off int, v uint32) error
	// Write4 stores a 4-byte value of record pre at byte offset off.
	Write4(pre, off int, v uint32) error
	// Write5 stores a 5-byte value of record pre at byte offset off.
	Write5(pre, off int, v uint64) error

	// Insert inserts the given records after position pre, so that the
	// first inserted record takes position pre+1. Insertion at the very
	// beginning of the table passes pre = -1. The payload length must be
	// a multiple of the record size.
	Insert(pre int, entries []byte) error

	// Delete removes the nr contiguous records starting at position first.
	Delete(first, nr int) error

	// Size returns the number of records in the table.
	Size() int
	// Blocks returns the number of used blocks.
	Blocks() int

	// Flush persists all pending changes.
	Flush() error
	// Close flushes and releases the table.
	Close() error
}
