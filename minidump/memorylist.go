package minidump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	memoryDescriptorSize   = 16
	memoryDescriptor64Size = 16
	memoryListHeaderSize   = 4
	memory64ListHeaderSize = 16
)

// MemoryDescriptor describes one range of a MemoryListStream. The range's
// bytes are stored at Memory.Rva in the dump file (MINIDUMP_MEMORY_DESCRIPTOR).
type MemoryDescriptor struct {
	StartOfMemoryRange uint64
	Memory             LocationDescriptor
}

func parseMemoryDescriptor(fr *fieldReader) MemoryDescriptor {
	return MemoryDescriptor{
		StartOfMemoryRange: fr.uint64("MemoryDescriptor.StartOfMemoryRange"),
		Memory:             parseLocationDescriptor(fr),
	}
}

// AppendBinary appends the 16-byte encoding of d to b.
func (d MemoryDescriptor) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint64(b, d.StartOfMemoryRange)
	return d.Memory.AppendBinary(b)
}

func (d MemoryDescriptor) String() string {
	return fmt.Sprintf("Start: 0x%x Size: %d Rva: %d", d.StartOfMemoryRange, d.Memory.DataSize, d.Memory.Rva)
}

// MemoryDescriptor64 describes one range of a Memory64ListStream. It has no
// file offset of its own: ranges are stored back to back starting at the
// list's BaseRva (MINIDUMP_MEMORY_DESCRIPTOR64).
type MemoryDescriptor64 struct {
	StartOfMemoryRange uint64
	DataSize           uint64
}

func parseMemoryDescriptor64(fr *fieldReader) MemoryDescriptor64 {
	return MemoryDescriptor64{
		StartOfMemoryRange: fr.uint64("MemoryDescriptor64.StartOfMemoryRange"),
		DataSize:           fr.uint64("MemoryDescriptor64.DataSize"),
	}
}

// AppendBinary appends the 16-byte encoding of d to b.
func (d MemoryDescriptor64) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint64(b, d.StartOfMemoryRange)
	return binary.LittleEndian.AppendUint64(b, d.DataSize), nil
}

func (d MemoryDescriptor64) String() string {
	return fmt.Sprintf("Start: 0x%x Size: %d", d.StartOfMemoryRange, d.DataSize)
}

// MemoryRangeList is a decoded memory list. It is either a *MemoryList or a
// *Memory64List; BuildSegments switches on the concrete type.
type MemoryRangeList interface {
	StreamType() StreamType
	Len() int
	memoryRangeList()
}

// MemoryList is the decoded MemoryListStream (MINIDUMP_MEMORY_LIST).
type MemoryList struct {
	Ranges []MemoryDescriptor
}

func (*MemoryList) memoryRangeList()         {}
func (*MemoryList) StreamType() StreamType   { return MemoryListStream }
func (l *MemoryList) Len() int               { return len(l.Ranges) }
func (*Memory64List) memoryRangeList()       {}
func (*Memory64List) StreamType() StreamType { return Memory64ListStream }
func (l *Memory64List) Len() int             { return len(l.Ranges) }

// ParseMemoryList decodes a MemoryListStream from the stream's bytes.
func ParseMemoryList(buf []byte) (*MemoryList, error) {
	fr := &fieldReader{r: bytes.NewReader(buf)}
	n := fr.uint32("MemoryList.NumberOfMemoryRanges")
	if fr.err != nil {
		return nil, fr.err
	}
	if err := checkCount(uint64(n), memoryDescriptorSize, len(buf)-memoryListHeaderSize, "MemoryList"); err != nil {
		return nil, err
	}
	l := &MemoryList{Ranges: make([]MemoryDescriptor, n)}
	for k := range l.Ranges {
		l.Ranges[k] = parseMemoryDescriptor(fr)
	}
	if fr.err != nil {
		return nil, fr.err
	}
	verbosef("ParseMemoryList: %d ranges", n)
	return l, nil
}

// MarshalBinary encodes l, with NumberOfMemoryRanges taken from len(l.Ranges).
func (l *MemoryList) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, memoryListHeaderSize+len(l.Ranges)*memoryDescriptorSize)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(l.Ranges)))
	for _, r := range l.Ranges {
		b, _ = r.AppendBinary(b)
	}
	return b, nil
}

func (l *MemoryList) String() string {
	lines := []string{
		"== MemoryList ==",
		fmt.Sprintf("NumberOfMemoryRanges: %d", len(l.Ranges)),
	}
	for _, r := range l.Ranges {
		lines = append(lines, r.String())
	}
	return strings.Join(lines, "\n")
}

// Memory64List is the decoded Memory64ListStream (MINIDUMP_MEMORY64_LIST).
type Memory64List struct {
	BaseRva uint64
	Ranges  []MemoryDescriptor64
}

// ParseMemory64List decodes a Memory64ListStream from the stream's bytes.
func ParseMemory64List(buf []byte) (*Memory64List, error) {
	fr := &fieldReader{r: bytes.NewReader(buf)}
	n := fr.uint64("Memory64List.NumberOfMemoryRanges")
	base := fr.uint64("Memory64List.BaseRva")
	if fr.err != nil {
		return nil, fr.err
	}
	if err := checkCount(n, memoryDescriptor64Size, len(buf)-memory64ListHeaderSize, "Memory64List"); err != nil {
		return nil, err
	}
	l := &Memory64List{BaseRva: base, Ranges: make([]MemoryDescriptor64, n)}
	for k := range l.Ranges {
		l.Ranges[k] = parseMemoryDescriptor64(fr)
	}
	if fr.err != nil {
		return nil, fr.err
	}
	verbosef("ParseMemory64List: %d ranges, BaseRva=0x%x", n, base)
	return l, nil
}

// MarshalBinary encodes l, with NumberOfMemoryRanges taken from len(l.Ranges).
func (l *Memory64List) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, memory64ListHeaderSize+len(l.Ranges)*memoryDescriptor64Size)
	b = binary.LittleEndian.AppendUint64(b, uint64(len(l.Ranges)))
	b = binary.LittleEndian.AppendUint64(b, l.BaseRva)
	for _, r := range l.Ranges {
		b, _ = r.AppendBinary(b)
	}
	return b, nil
}

func (l *Memory64List) String() string {
	lines := []string{
		"== Memory64List ==",
		fmt.Sprintf("NumberOfMemoryRanges: %d", len(l.Ranges)),
		fmt.Sprintf("BaseRva: %d", l.BaseRva),
	}
	for _, r := range l.Ranges {
		lines = append(lines, r.String())
	}
	return strings.Join(lines, "\n")
}

// checkCount fails if count records of recSize bytes cannot fit in avail bytes.
// This rejects bogus counts before anything is allocated for them.
func checkCount(count uint64, recSize, avail int, what string) error {
	if avail < 0 {
		avail = 0
	}
	if count > uint64(avail/recSize) {
		return fmt.Errorf("%s declares %d ranges but only %d bytes follow the header: %w",
			what, count, avail, ErrTruncatedInput)
	}
	return nil
}
