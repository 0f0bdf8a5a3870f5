package serialization

import (
	"fmt"
	"os"
)

// MappedFile is a read-only memory mapping of a whole file.
//
// Important: Always call Close() when done to unmap the file (use defer).
type MappedFile struct {
	file *os.File
	data []byte
}

// MapFile maps path into memory.
func MapFile(path string) (*MappedFile, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() == 0 {
		return &MappedFile{file: file}, nil
	}

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return &MappedFile{file: file, data: data}, nil
}

// Bytes returns the mapped contents. They are invalid after Close.
func (m *MappedFile) Bytes() []byte {
	return m.data
}

// Close unmaps and closes the file.
func (m *MappedFile) Close() error {
	var err error
	if m.data != nil {
		err = munmapFile(m.data)
		m.data = nil
	}
	if closeErr := m.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
