// Package minidump reconstructs the virtual memory of a process from a
// Windows minidump file and provides reads and byte-pattern searches over it.
//
// A minidump stores memory as a list of ranges. Each range maps a contiguous
// span of virtual addresses to a contiguous region of the dump file. Two
// encodings exist. A MemoryListStream (typical of small dumps) stores an
// explicit file offset with every range. A Memory64ListStream (full-memory
// dumps) stores one base offset for the whole list; the ranges' bytes follow
// each other in list order, so the file offset of a range is the base plus the
// sizes of all ranges before it. BuildSegments turns either list into
// Segments, and an AddressSpace resolves virtual addresses to segments.
//
// Memory is never loaded as a whole. Open maps the file read-only and every
// Read or Search goes through an io.ReadSeeker whose position is restored
// before the call returns. Nothing in this package locks: an io.ReadSeeker
// (and any AddressSpace built on it) must not be used by two goroutines at
// once. Use File.NewSource or File.AddressSpace to get independent readers.
//
// Every blocking operation has a Context variant. The context is checked
// before each Seek and Read of the underlying reader, which are the only
// points where such an operation can stop early. The reader's position is
// restored after a cancelled call too.
//
// Currently unsupported:
//
// * Streams other than MemoryListStream and Memory64ListStream are listed in
// File.Streams but not decoded (threads, modules, exceptions, system info).
//
// * Symbol resolution and writing or repairing dumps.
package minidump
