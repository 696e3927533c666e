package minidump

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// AddressSpace answers reads and searches over the virtual memory described
// by a list of segments whose bytes are stored in src.
//
// AddressSpace performs no locking. Calls must not overlap with each other or
// with any other use of src; give each concurrent reader its own AddressSpace
// over its own source (see File.NewSource).
type AddressSpace struct {
	segs   Segments
	byAddr []int    // indexes into segs of non-empty segments, sorted by start address
	maxEnd []uint64 // maxEnd[k] is the largest end address of byAddr[0..k]
	src    io.ReadSeeker
}

// NewAddressSpace returns an AddressSpace over segs, backed by src.
// segs is not copied and must not be modified afterward.
func NewAddressSpace(segs Segments, src io.ReadSeeker) *AddressSpace {
	as := &AddressSpace{
		segs:   segs,
		byAddr: segs.sortedByAddr(),
		src:    src,
	}
	as.maxEnd = make([]uint64, len(as.byAddr))
	var end uint64
	for k, i := range as.byAddr {
		end = max(end, segs[i].endVirtualAddress)
		as.maxEnd[k] = end
	}
	if sanityChecks {
		for _, p := range segs.Overlapping() {
			warnf("overlapping segments: [%d] %s and [%d] %s", p[0], segs[p[0]], p[1], segs[p[1]])
		}
	}
	logf("address space: %d segments, 0x%x bytes", len(segs), segs.TotalSize())
	return as
}

// Segments returns the segments of as in list order.
func (as *AddressSpace) Segments() Segments {
	return as.segs
}

// FindSegment finds the segment that contains the given address. If several
// segments contain it, the one with the highest start address wins.
func (as *AddressSpace) FindSegment(va uint64) (MemorySegment, bool) {
	// Binary search for an upper-bound segment, then walk back
	// while some earlier segment may still reach va.
	k := sort.Search(len(as.byAddr), func(k int) bool {
		return va < as.segs[as.byAddr[k]].startVirtualAddress
	})
	for k--; k >= 0 && va < as.maxEnd[k]; k-- {
		if s := as.segs[as.byAddr[k]]; s.Contains(va) {
			return s, true
		}
	}
	return MemorySegment{}, false
}

// Read returns size bytes starting at va. The whole range must lie in the
// segment that contains va.
func (as *AddressSpace) Read(va, size uint64) ([]byte, error) {
	return as.ReadContext(context.Background(), va, size)
}

// ReadContext is like Read but honors cancellation of ctx between I/O calls.
func (as *AddressSpace) ReadContext(ctx context.Context, va, size uint64) ([]byte, error) {
	s, ok := as.FindSegment(va)
	if !ok {
		return nil, &AddressNotMappedError{Addr: va, Size: size}
	}
	return s.ReadContext(ctx, va, size, as.src)
}

// ReadUint32 reads a little-endian uint32 at va.
func (as *AddressSpace) ReadUint32(va uint64) (uint32, error) {
	b, err := as.Read(va, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a little-endian uint64 at va.
func (as *AddressSpace) ReadUint64(va uint64) (uint64, error) {
	b, err := as.Read(va, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadPointer reads a pointer of ptrSize bytes (4 or 8) at va.
func (as *AddressSpace) ReadPointer(va uint64, ptrSize int) (uint64, error) {
	switch ptrSize {
	case 4:
		x, err := as.ReadUint32(va)
		return uint64(x), err
	case 8:
		return as.ReadUint64(va)
	}
	return 0, fmt.Errorf("unsupported pointer size %d", ptrSize)
}

// Search searches every segment, in list order, and returns the virtual
// addresses of all matches. With findFirst, it stops at the first segment
// that has a match and returns only that match. See MemorySegment.Search.
func (as *AddressSpace) Search(pattern []byte, findFirst bool, chunkSize int) ([]uint64, error) {
	return as.SearchContext(context.Background(), pattern, findFirst, chunkSize)
}

// SearchContext is like Search but honors cancellation of ctx between I/O calls.
func (as *AddressSpace) SearchContext(ctx context.Context, pattern []byte, findFirst bool, chunkSize int) ([]uint64, error) {
	if len(pattern) == 0 {
		return nil, ErrEmptyPattern
	}
	var all []uint64
	for k, s := range as.segs {
		found, err := s.SearchContext(ctx, pattern, as.src, findFirst, chunkSize)
		if err != nil {
			return all, fmt.Errorf("segment %d: %w", k, err)
		}
		all = append(all, found...)
		if findFirst && len(all) > 0 {
			return all, nil
		}
	}
	return all, nil
}
