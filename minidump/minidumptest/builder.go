// Package minidumptest builds small minidump images for tests.
package minidumptest

import (
	"os"

	"github.com/tombergan/minidump/minidump"
)

// Region is a range of process memory: Data is the content at virtual
// address Addr.
type Region struct {
	Addr uint64
	Data []byte
}

type stream struct {
	typ     minidump.StreamType
	raw     []byte   // for raw streams
	regions []Region // for memory lists
}

// Builder assembles a minidump image. The image is laid out as the header,
// the stream directory, the stream bodies in the order they were added, and
// finally the memory contents of each memory list in list order.
type Builder struct {
	Flags         minidump.DumpType
	TimeDateStamp uint32
	streams       []stream
}

// AddMemoryList adds a MemoryListStream holding the given regions.
func (b *Builder) AddMemoryList(regions ...Region) *Builder {
	b.streams = append(b.streams, stream{typ: minidump.MemoryListStream, regions: regions})
	return b
}

// AddMemory64List adds a Memory64ListStream holding the given regions.
func (b *Builder) AddMemory64List(regions ...Region) *Builder {
	b.streams = append(b.streams, stream{typ: minidump.Memory64ListStream, regions: regions})
	return b
}

// AddStream adds a stream with the given type and contents.
func (b *Builder) AddStream(t minidump.StreamType, data []byte) *Builder {
	b.streams = append(b.streams, stream{typ: t, raw: data})
	return b
}

func (s stream) bodySize() int {
	switch s.typ {
	case minidump.MemoryListStream:
		return 4 + 16*len(s.regions)
	case minidump.Memory64ListStream:
		return 16 + 16*len(s.regions)
	}
	return len(s.raw)
}

// Bytes returns the encoded image.
func (b *Builder) Bytes() []byte {
	const headerSize, dirEntrySize = 32, 12

	// Lay out stream bodies, then memory contents.
	dirRva := uint32(headerSize)
	off := dirRva + uint32(dirEntrySize*len(b.streams))
	bodyRva := make([]uint32, len(b.streams))
	for k, s := range b.streams {
		bodyRva[k] = off
		off += uint32(s.bodySize())
	}
	memRva := make([]uint32, len(b.streams))
	for k, s := range b.streams {
		memRva[k] = off
		for _, r := range s.regions {
			off += uint32(len(r.Data))
		}
	}

	bodies := make([][]byte, len(b.streams))
	for k, s := range b.streams {
		switch s.typ {
		case minidump.MemoryListStream:
			l := &minidump.MemoryList{}
			rva := memRva[k]
			for _, r := range s.regions {
				l.Ranges = append(l.Ranges, minidump.MemoryDescriptor{
					StartOfMemoryRange: r.Addr,
					Memory:             minidump.LocationDescriptor{DataSize: uint32(len(r.Data)), Rva: rva},
				})
				rva += uint32(len(r.Data))
			}
			bodies[k], _ = l.MarshalBinary()
		case minidump.Memory64ListStream:
			l := &minidump.Memory64List{BaseRva: uint64(memRva[k])}
			for _, r := range s.regions {
				l.Ranges = append(l.Ranges, minidump.MemoryDescriptor64{
					StartOfMemoryRange: r.Addr,
					DataSize:           uint64(len(r.Data)),
				})
			}
			bodies[k], _ = l.MarshalBinary()
		default:
			bodies[k] = s.raw
		}
	}

	h := minidump.Header{
		Signature:          minidump.Signature,
		Version:            0xa793,
		NumberOfStreams:    uint32(len(b.streams)),
		StreamDirectoryRva: dirRva,
		TimeDateStamp:      b.TimeDateStamp,
		Flags:              b.Flags,
	}
	out, _ := h.MarshalBinary()
	for k, s := range b.streams {
		d := minidump.Directory{
			StreamType: s.typ,
			Location:   minidump.LocationDescriptor{DataSize: uint32(len(bodies[k])), Rva: bodyRva[k]},
		}
		out, _ = d.AppendBinary(out)
	}
	for _, body := range bodies {
		out = append(out, body...)
	}
	for _, s := range b.streams {
		for _, r := range s.regions {
			out = append(out, r.Data...)
		}
	}
	return out
}

// WriteFile writes the image to the named file.
func (b *Builder) WriteFile(filename string) error {
	return os.WriteFile(filename, b.Bytes(), 0o644)
}
