package minidump

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

var errMmapClosed = errors.New("mmap: closed")

// mmapFile is a read-only memory mapping of a dump file. It implements
// io.ReaderAt; cursor-based readers are layered on top with io.SectionReader
// so that each reader gets its own position over the same mapping.
type mmapFile struct {
	filename string
	data     mmap.MMap
	closed   bool
}

// mmapOpen maps the named file for reading.
func mmapOpen(filename string) (*mmapFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := st.Size()
	if size == 0 {
		// mmap rejects empty mappings.
		return &mmapFile{filename: filename, data: mmap.MMap{}}, nil
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("mmap: file %q is too large", filename)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap: %q: %w", filename, err)
	}
	return &mmapFile{filename: filename, data: data}, nil
}

// Name returns the name of the file.
func (f *mmapFile) Name() string {
	return f.filename
}

// Size returns the size of the mapped file.
func (f *mmapFile) Size() int64 {
	return int64(len(f.data))
}

// ReadAt implements io.ReaderAt.
func (f *mmapFile) ReadAt(p []byte, offset int64) (int, error) {
	if f.closed {
		return 0, errMmapClosed
	}
	if offset < 0 {
		return 0, fmt.Errorf("negative offset: %v", offset)
	}
	if offset >= f.Size() {
		return 0, io.EOF
	}
	n := copy(p, f.data[offset:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file. Later reads fail.
func (f *mmapFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if len(f.data) == 0 {
		return nil
	}
	err := f.data.Unmap()
	f.data = nil
	return err
}
