package minidump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
)

// DefaultChunkSize is the read size used by Search when the caller passes a
// chunk size <= 0.
const DefaultChunkSize = 50 * 1024

// MemorySegment describes one contiguous range of the dumped process's virtual
// memory and the contiguous region of the dump file that holds its bytes.
//
// A MemorySegment does not own a file handle. Every operation that touches
// the backing bytes takes an io.ReadSeeker and leaves that reader's position
// exactly where it found it, so several segments can share one reader as long
// as calls are not made concurrently.
type MemorySegment struct {
	size                uint64
	startFileAddress    uint64
	startVirtualAddress uint64
	endVirtualAddress   uint64
}

// NewMemorySegment returns the segment [va, va+size) backed by the file
// region [fileOffset, fileOffset+size). Fails with ErrOffsetOverflow if
// either range does not fit in 64 bits.
func NewMemorySegment(va, size, fileOffset uint64) (MemorySegment, error) {
	if va+size < va {
		return MemorySegment{}, fmt.Errorf("segment at 0x%x with size 0x%x wraps the address space: %w", va, size, ErrOffsetOverflow)
	}
	if fileOffset+size < fileOffset {
		return MemorySegment{}, fmt.Errorf("segment at file offset 0x%x with size 0x%x wraps the file offset range: %w", fileOffset, size, ErrOffsetOverflow)
	}
	return MemorySegment{
		size:                size,
		startFileAddress:    fileOffset,
		startVirtualAddress: va,
		endVirtualAddress:   va + size,
	}, nil
}

// Size reports the size of the segment in bytes.
func (s MemorySegment) Size() uint64 { return s.size }

// StartFileAddress is the file offset of the segment's first byte.
func (s MemorySegment) StartFileAddress() uint64 { return s.startFileAddress }

// StartVirtualAddress is the virtual address of the segment's first byte.
func (s MemorySegment) StartVirtualAddress() uint64 { return s.startVirtualAddress }

// EndVirtualAddress is StartVirtualAddress()+Size(), one past the last byte.
func (s MemorySegment) EndVirtualAddress() uint64 { return s.endVirtualAddress }

// Contains reports whether the segment contains the given address.
func (s MemorySegment) Contains(va uint64) bool {
	return s.startVirtualAddress <= va && va < s.endVirtualAddress
}

// ValidateAddress checks that [va, va+size) lies inside the segment. va may
// equal EndVirtualAddress() only when size is zero.
func (s MemorySegment) ValidateAddress(va, size uint64) error {
	if va < s.startVirtualAddress || va > s.endVirtualAddress {
		return s.outOfRange(NotInSegment, va, size)
	}
	if size > s.endVirtualAddress-va {
		return s.outOfRange(CrossesEnd, va, size)
	}
	return nil
}

func (s MemorySegment) outOfRange(reason OutOfRangeReason, va, size uint64) error {
	return &OutOfRangeError{
		Reason:   reason,
		Addr:     va,
		Size:     size,
		SegStart: s.startVirtualAddress,
		SegEnd:   s.endVirtualAddress,
	}
}

// Read returns the size bytes at virtual address va, read from src.
func (s MemorySegment) Read(va, size uint64, src io.ReadSeeker) ([]byte, error) {
	return s.ReadContext(context.Background(), va, size, src)
}

// ReadContext is like Read but gives up at the next Seek or Read of src once
// ctx is done. The position of src is restored on every return path.
func (s MemorySegment) ReadContext(ctx context.Context, va, size uint64, src io.ReadSeeker) (data []byte, err error) {
	if err := s.ValidateAddress(va, size); err != nil {
		return nil, err
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("read of 0x%x bytes at 0x%x in %s: too large to buffer", size, va, s)
	}

	restore, err := saveCursor(src)
	if err != nil {
		return nil, err
	}
	defer restore(&err)

	rs := withContext(ctx, src)
	off := s.startFileAddress + (va - s.startVirtualAddress)
	if err := seekTo(rs, off); err != nil {
		return nil, err
	}
	data, err = readN(rs, size)
	if err != nil {
		return nil, fmt.Errorf("reading 0x%x bytes at 0x%x from %s (file offset 0x%x): %w", size, va, s, off, err)
	}
	return data, nil
}

// Search looks for pattern in the segment's bytes and returns the virtual
// addresses where it occurs.
//
// If findFirst is true, the segment is read chunkSize bytes at a time and the
// search stops at the first match, which may straddle chunk boundaries. The
// result then has at most one element.
//
// Otherwise the whole segment is read and every match is returned in
// increasing order. After a match the search resumes one byte past the start
// of that match, so overlapping occurrences are all reported: "ABA" occurs in
// "ABABA" at offsets 0 and 2.
//
// A pattern longer than the segment cannot match and yields no results.
func (s MemorySegment) Search(pattern []byte, src io.ReadSeeker, findFirst bool, chunkSize int) ([]uint64, error) {
	return s.SearchContext(context.Background(), pattern, src, findFirst, chunkSize)
}

// SearchContext is like Search but gives up at the next Seek or Read of src
// once ctx is done. The position of src is restored on every return path.
func (s MemorySegment) SearchContext(ctx context.Context, pattern []byte, src io.ReadSeeker, findFirst bool, chunkSize int) (matches []uint64, err error) {
	if len(pattern) == 0 {
		return nil, ErrEmptyPattern
	}
	if uint64(len(pattern)) > s.size {
		verbosef("Search: pattern of %d bytes is larger than %s", len(pattern), s)
		return nil, nil
	}
	if s.size > math.MaxInt {
		return nil, fmt.Errorf("searching %s: too large to buffer", s)
	}

	restore, err := saveCursor(src)
	if err != nil {
		return nil, err
	}
	defer restore(&err)

	rs := withContext(ctx, src)
	if err := seekTo(rs, s.startFileAddress); err != nil {
		return nil, err
	}
	if findFirst {
		return s.searchFirst(rs, pattern, chunkSize)
	}
	return s.searchAll(rs, pattern)
}

func (s MemorySegment) searchFirst(r io.Reader, pattern []byte, chunkSize int) ([]uint64, error) {
	size := int(s.size)
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunkSize = min(chunkSize, size)

	var data []byte
	for i := 1; len(data) < size; i++ {
		n := min(chunkSize, size-len(data))
		// A match starting before from would have been found last iteration.
		from := max(0, len(data)-len(pattern)+1)

		chunk, err := readN(r, uint64(n))
		if err != nil {
			return nil, s.searchErr(len(data), err)
		}
		data = append(data, chunk...)

		if k := bytes.Index(data[from:], pattern); k >= 0 {
			verbosef("Search: found after %d chunks (%d of %d bytes) in %s", i, len(data), size, s)
			return []uint64{s.startVirtualAddress + uint64(from+k)}, nil
		}
	}
	verbosef("Search: not found in %s", s)
	return nil, nil
}

func (s MemorySegment) searchAll(r io.Reader, pattern []byte) ([]uint64, error) {
	data, err := readN(r, s.size)
	if err != nil {
		return nil, s.searchErr(0, err)
	}

	var matches []uint64
	for off := 0; len(data)-off >= len(pattern); {
		k := bytes.Index(data[off:], pattern)
		if k < 0 {
			break
		}
		matches = append(matches, s.startVirtualAddress+uint64(off+k))
		off += k + 1
	}
	return matches, nil
}

func (s MemorySegment) searchErr(read int, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("searching %s after reading 0x%x bytes: %w", s, read, err)
}

func (s MemorySegment) String() string {
	return fmt.Sprintf("VA Start: 0x%x, RVA: 0x%x, Size: 0x%x", s.startVirtualAddress, s.startFileAddress, s.size)
}
