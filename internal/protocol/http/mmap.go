package http

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile is a read-only private mapping of a whole file. The zero value
// holds nothing; Release is idempotent.
type mappedFile struct {
	data []byte
}

// mapFile maps size bytes of f. The descriptor can be closed afterwards; the
// mapping stays valid until Release.
func mapFile(f *os.File, size int) (mappedFile, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return mappedFile{}, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	return mappedFile{data: data}, nil
}

func (m *mappedFile) Bytes() []byte {
	return m.data
}

func (m *mappedFile) Release() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
