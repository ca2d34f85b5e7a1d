package table

import "errors"

var (
	// ErrTableClosed is returned when operations are performed on a closed table
	ErrTableClosed = errors.New("table is closed")
	// ErrTableLocked is returned when the database is locked by another process
	ErrTableLocked = errors.New("table is locked by another process")
	// ErrCorruptHeader is returned when a sidecar file is truncated or its
	// header counts are inconsistent; a missing sidecar yields the wrapped
	// file-system error instead
	ErrCorruptHeader = errors.New("corrupt table header")
	// ErrCorruptIndex is returned when the block index cannot resolve a position
	ErrCorruptIndex = errors.New("corrupt block index")
	// ErrOutOfRange is returned when a record position or byte offset is invalid
	ErrOutOfRange = errors.New("position out of range")
	// ErrMisalignedPayload is returned when an insert payload is not a
	// multiple of the record size
	ErrMisalignedPayload = errors.New("payload is not a multiple of the record size")
)
