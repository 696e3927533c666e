package minidump

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	locationDescriptorSize   = 8
	locationDescriptor64Size = 16
)

// LocationDescriptor names a region of the dump file: DataSize bytes starting
// at file offset Rva. This is MINIDUMP_LOCATION_DESCRIPTOR.
type LocationDescriptor struct {
	DataSize uint32
	Rva      uint32
}

// LocationDescriptor64 is the 64-bit form of LocationDescriptor
// (MINIDUMP_LOCATION_DESCRIPTOR64).
type LocationDescriptor64 struct {
	DataSize uint64
	Rva      uint64
}

// ParseLocationDescriptor reads exactly 8 bytes from r.
func ParseLocationDescriptor(r io.Reader) (LocationDescriptor, error) {
	fr := &fieldReader{r: r}
	l := parseLocationDescriptor(fr)
	return l, fr.err
}

func parseLocationDescriptor(fr *fieldReader) LocationDescriptor {
	return LocationDescriptor{
		DataSize: fr.uint32("LocationDescriptor.DataSize"),
		Rva:      fr.uint32("LocationDescriptor.Rva"),
	}
}

// AppendBinary appends the 8-byte encoding of l to b.
func (l LocationDescriptor) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, l.DataSize)
	return binary.LittleEndian.AppendUint32(b, l.Rva), nil
}

// MarshalBinary returns the 8-byte encoding of l.
func (l LocationDescriptor) MarshalBinary() ([]byte, error) {
	return l.AppendBinary(make([]byte, 0, locationDescriptorSize))
}

// End returns the file offset just past the described region.
func (l LocationDescriptor) End() uint64 {
	return uint64(l.Rva) + uint64(l.DataSize)
}

func (l LocationDescriptor) String() string {
	return fmt.Sprintf("Size: %d File offset: %d", l.DataSize, l.Rva)
}

// ParseLocationDescriptor64 reads exactly 16 bytes from r.
func ParseLocationDescriptor64(r io.Reader) (LocationDescriptor64, error) {
	fr := &fieldReader{r: r}
	l := LocationDescriptor64{
		DataSize: fr.uint64("LocationDescriptor64.DataSize"),
		Rva:      fr.uint64("LocationDescriptor64.Rva"),
	}
	return l, fr.err
}

// AppendBinary appends the 16-byte encoding of l to b.
func (l LocationDescriptor64) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint64(b, l.DataSize)
	return binary.LittleEndian.AppendUint64(b, l.Rva), nil
}

// MarshalBinary returns the 16-byte encoding of l.
func (l LocationDescriptor64) MarshalBinary() ([]byte, error) {
	return l.AppendBinary(make([]byte, 0, locationDescriptor64Size))
}

func (l LocationDescriptor64) String() string {
	return fmt.Sprintf("Size: %d File offset: %d", l.DataSize, l.Rva)
}
