package minidump

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedInput is returned when a fixed-width field or a stream
	// extends past the end of the available data.
	ErrTruncatedInput = errors.New("minidump: unexpected end of data")

	// ErrOutOfRange is matched by every *OutOfRangeError.
	ErrOutOfRange = errors.New("minidump: out of range")

	// ErrAddressNotMapped is matched by every *AddressNotMappedError.
	ErrAddressNotMapped = errors.New("minidump: address not mapped")

	// ErrOffsetOverflow is returned when a file offset or a virtual address
	// range computed while building segments does not fit in 64 bits.
	ErrOffsetOverflow = errors.New("minidump: offset overflow")

	// ErrEmptyPattern is returned by searches for a zero-length pattern.
	ErrEmptyPattern = errors.New("minidump: empty search pattern")

	// ErrNoMemoryStream is returned when a dump has neither a MemoryListStream
	// nor a Memory64ListStream.
	ErrNoMemoryStream = errors.New("minidump: no memory list stream")
)

// OutOfRangeReason says why an access was rejected by a MemorySegment.
type OutOfRangeReason int

const (
	// NotInSegment means the start address lies outside the segment.
	NotInSegment OutOfRangeReason = iota
	// CrossesEnd means the access starts inside the segment but runs past its end.
	CrossesEnd
)

func (r OutOfRangeReason) String() string {
	switch r {
	case NotInSegment:
		return "address not in segment"
	case CrossesEnd:
		return "access crosses segment end"
	}
	return fmt.Sprintf("OutOfRangeReason(%d)", int(r))
}

// OutOfRangeError describes an access [Addr, Addr+Size) rejected by the
// segment [SegStart, SegEnd).
type OutOfRangeError struct {
	Reason           OutOfRangeReason
	Addr, Size       uint64
	SegStart, SegEnd uint64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("minidump: %s: access [0x%x, +0x%x) segment [0x%x, 0x%x)",
		e.Reason, e.Addr, e.Size, e.SegStart, e.SegEnd)
}

func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// AddressNotMappedError is returned when no segment of an AddressSpace
// contains Addr.
type AddressNotMappedError struct {
	Addr uint64
	Size uint64
}

func (e *AddressNotMappedError) Error() string {
	return fmt.Sprintf("minidump: address 0x%x (read size 0x%x) is not mapped", e.Addr, e.Size)
}

func (e *AddressNotMappedError) Is(target error) bool {
	return target == ErrAddressNotMapped
}
