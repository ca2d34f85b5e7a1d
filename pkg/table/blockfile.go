package table

import (
	"fmt"
	"os"
)

// blockFile wraps the data file holding all blocks back to back, each
// exactly one block size long, starting at offset 0. The file grows
// monotonically; block numbers are never reused.
type blockFile struct {
	file       *os.File
	blockPower uint
}

// createBlockFile creates a new data file. The file must not exist.
func createBlockFile(path string, blockPower uint) (*blockFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create data file: %w", err)
	}
	return &blockFile{file: file, blockPower: blockPower}, nil
}

// openBlockFile opens an existing data file for reading and writing.
func openBlockFile(path string, blockPower uint) (*blockFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	return &blockFile{file: file, blockPower: blockPower}, nil
}

// readBlock reads block n into buf, which must be one block long.
func (b *blockFile) readBlock(n int, buf []byte) error {
	if _, err := b.file.ReadAt(buf, int64(n)<<b.blockPower); err != nil {
		return fmt.Errorf("failed to read block %d: %w", n, err)
	}
	return nil
}

// writeBlock writes buf as block n, extending the file if needed.
func (b *blockFile) writeBlock(n int, buf []byte) error {
	if _, err := b.file.WriteAt(buf, int64(n)<<b.blockPower); err != nil {
		return fmt.Errorf("failed to write block %d: %w", n, err)
	}
	return nil
}

func (b *blockFile) close() error {
	return b.file.Close()
}

// fileLock is an advisory lock enforcing the single-owner rule: the
// data and sidecar files belong to exactly one open table at a time.
type fileLock struct {
	path string
}

// acquireLock creates the lock file, failing if it already exists.
func acquireLock(path string) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTableLocked, path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	fmt.Fprintf(file, "%d\n", os.Getpid())
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &fileLock{path: path}, nil
}

// release removes the lock file.
func (l *fileLock) release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
