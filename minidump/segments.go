package minidump

import (
	"fmt"
	"sort"
	"strings"
)

// Segments is a list of memory segments in the order their descriptors
// appear in the dump. Simple lists are not required to be sorted by address.
type Segments []MemorySegment

// BuildSegments converts a decoded memory list into segments, one per
// descriptor, in descriptor order.
//
// For a *MemoryList each descriptor carries its own file offset. For a
// *Memory64List the file offset of range k is BaseRva plus the sizes of
// ranges 0..k-1, so reordering ranges moves every later segment.
func BuildSegments(list MemoryRangeList) (Segments, error) {
	switch l := list.(type) {
	case *MemoryList:
		return buildSimpleSegments(l)
	case *Memory64List:
		return build64Segments(l)
	default:
		return nil, fmt.Errorf("unsupported memory list type %T", list)
	}
}

// BuildSimpleSegments decodes a MemoryListStream and builds its segments.
func BuildSimpleSegments(buf []byte) (Segments, error) {
	l, err := ParseMemoryList(buf)
	if err != nil {
		return nil, err
	}
	return BuildSegments(l)
}

// Build64Segments decodes a Memory64ListStream and builds its segments.
func Build64Segments(buf []byte) (Segments, error) {
	l, err := ParseMemory64List(buf)
	if err != nil {
		return nil, err
	}
	return BuildSegments(l)
}

func buildSimpleSegments(l *MemoryList) (Segments, error) {
	ss := make(Segments, 0, len(l.Ranges))
	for k, r := range l.Ranges {
		s, err := NewMemorySegment(r.StartOfMemoryRange, uint64(r.Memory.DataSize), uint64(r.Memory.Rva))
		if err != nil {
			return nil, fmt.Errorf("MemoryList range %d: %w", k, err)
		}
		logf("loading %s", s)
		ss = append(ss, s)
	}
	return ss, nil
}

func build64Segments(l *Memory64List) (Segments, error) {
	ss := make(Segments, 0, len(l.Ranges))
	rva := l.BaseRva
	for k, r := range l.Ranges {
		// NewMemorySegment rejects rva+DataSize wrapping, so rva cannot wrap below.
		s, err := NewMemorySegment(r.StartOfMemoryRange, r.DataSize, rva)
		if err != nil {
			return nil, fmt.Errorf("Memory64List range %d (BaseRva 0x%x): %w", k, l.BaseRva, err)
		}
		logf("loading %s", s)
		ss = append(ss, s)
		rva += r.DataSize
	}
	return ss, nil
}

// TotalSize returns the sum of the sizes of all segments.
func (ss Segments) TotalSize() uint64 {
	var n uint64
	for _, s := range ss {
		n += s.size
	}
	return n
}

// Overlapping returns the index pairs of segments whose virtual ranges
// intersect. Segments built from a well-formed dump never overlap.
func (ss Segments) Overlapping() [][2]int {
	idx := ss.sortedByAddr()
	var pairs [][2]int
	for i := range idx {
		a := ss[idx[i]]
		for k := i + 1; k < len(idx); k++ {
			b := ss[idx[k]]
			if b.startVirtualAddress >= a.endVirtualAddress {
				break
			}
			pairs = append(pairs, [2]int{idx[i], idx[k]})
		}
	}
	return pairs
}

// sortedByAddr returns the indexes of all non-empty segments, sorted by start address.
func (ss Segments) sortedByAddr() []int {
	idx := make([]int, 0, len(ss))
	for k, s := range ss {
		if s.size > 0 {
			idx = append(idx, k)
		}
	}
	sort.SliceStable(idx, func(i, k int) bool {
		return ss[idx[i]].startVirtualAddress < ss[idx[k]].startVirtualAddress
	})
	return idx
}

// TableHeader names the columns of the rows returned by Table.
var TableHeader = []string{"VA Start", "RVA", "Size"}

// Table returns one row per segment, in list order, for tabular display.
func (ss Segments) Table() [][]string {
	rows := make([][]string, 0, len(ss))
	for _, s := range ss {
		rows = append(rows, []string{
			fmt.Sprintf("0x%x", s.startVirtualAddress),
			fmt.Sprintf("0x%x", s.startFileAddress),
			fmt.Sprintf("0x%x", s.size),
		})
	}
	return rows
}

func (ss Segments) String() string {
	lines := make([]string, 0, len(ss))
	for _, s := range ss {
		lines = append(lines, s.String())
	}
	return strings.Join(lines, "\n")
}
