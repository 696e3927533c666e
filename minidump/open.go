package minidump

import (
	"fmt"
	"io"
)

// File is an open minidump.
type File struct {
	Header  Header
	Streams []Directory

	// MemoryList and Memory64List are the decoded memory list streams, or
	// nil if the dump does not have that stream.
	MemoryList   *MemoryList
	Memory64List *Memory64List

	segments Segments // from Memory64List if present, else MemoryList
	r        io.ReaderAt
	closer   io.Closer
}

// Open maps the named file and reads its header, stream directory, and
// memory lists. Memory contents are not read until requested.
// File.Close should be called when the dump is no longer needed.
func Open(filename string) (*File, error) {
	mmapf, err := mmapOpen(filename)
	if err != nil {
		return nil, err
	}
	f, err := NewFile(mmapf)
	if err != nil {
		mmapf.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	f.closer = mmapf
	return f, nil
}

// NewFile reads a minidump from r. r must remain valid for the lifetime of
// the File.
func NewFile(r io.ReaderAt) (*File, error) {
	f := &File{r: r}
	src := f.NewSource()

	h, err := ParseHeader(src)
	if err != nil {
		return nil, err
	}
	f.Header = h
	verbosef("NewFile: %s", h)

	if err := seekTo(src, uint64(h.StreamDirectoryRva)); err != nil {
		return nil, err
	}
	if f.Streams, err = ParseDirectory(src, h.NumberOfStreams); err != nil {
		return nil, err
	}

	for _, d := range f.Streams {
		switch d.StreamType {
		case MemoryListStream:
			if f.MemoryList != nil {
				logf("ignoring extra %s", d)
				continue
			}
			buf, err := ReadStream(src, d.Location)
			if err != nil {
				return nil, err
			}
			if f.MemoryList, err = ParseMemoryList(buf); err != nil {
				return nil, fmt.Errorf("%s: %w", d, err)
			}
		case Memory64ListStream:
			if f.Memory64List != nil {
				logf("ignoring extra %s", d)
				continue
			}
			buf, err := ReadStream(src, d.Location)
			if err != nil {
				return nil, err
			}
			if f.Memory64List, err = ParseMemory64List(buf); err != nil {
				return nil, fmt.Errorf("%s: %w", d, err)
			}
		default:
			verbosef("NewFile: skipping %s", d)
		}
	}

	var list MemoryRangeList
	switch {
	case f.Memory64List != nil:
		list = f.Memory64List
	case f.MemoryList != nil:
		list = f.MemoryList
	default:
		return f, nil
	}
	if f.segments, err = BuildSegments(list); err != nil {
		return nil, err
	}
	return f, nil
}

// Stream returns the directory entry of the first stream of type t.
func (f *File) Stream(t StreamType) (Directory, bool) {
	for _, d := range f.Streams {
		if d.StreamType == t {
			return d, true
		}
	}
	return Directory{}, false
}

// ReadStream returns the raw bytes of the first stream of type t.
func (f *File) ReadStream(t StreamType) ([]byte, error) {
	d, ok := f.Stream(t)
	if !ok {
		return nil, fmt.Errorf("minidump has no %s", t)
	}
	return ReadStream(f.NewSource(), d.Location)
}

// Segments returns the dump's memory segments: those of the Memory64List
// if the dump has one (full-memory dumps), else those of the MemoryList.
func (f *File) Segments() (Segments, error) {
	if f.segments == nil && f.MemoryList == nil && f.Memory64List == nil {
		return nil, ErrNoMemoryStream
	}
	return f.segments, nil
}

// NewSource returns a new reader positioned at the start of the dump file.
// Readers returned by separate calls have independent positions and may be
// used from different goroutines.
func (f *File) NewSource() io.ReadSeeker {
	return io.NewSectionReader(f.r, 0, 1<<63-1)
}

// AddressSpace returns an AddressSpace over the dump's memory segments,
// backed by a new source from NewSource.
func (f *File) AddressSpace() (*AddressSpace, error) {
	segs, err := f.Segments()
	if err != nil {
		return nil, err
	}
	return NewAddressSpace(segs, f.NewSource()), nil
}

// Close releases the file mapping opened by Open. It is a no-op for Files
// created with NewFile.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}
