package minidump

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"
)

// Signature is the value of Header.Signature in every minidump ("MDMP").
const Signature = 0x504d444d

const (
	headerSize    = 32
	directorySize = 12
)

// Header is the fixed header at the start of a minidump file (MINIDUMP_HEADER).
type Header struct {
	Signature          uint32
	Version            uint32 // low word is MINIDUMP_VERSION, high word is implementation specific
	NumberOfStreams    uint32
	StreamDirectoryRva uint32
	CheckSum           uint32
	TimeDateStamp      uint32 // seconds since the Unix epoch
	Flags              DumpType
}

// ParseHeader reads the 32-byte header from r and checks its signature.
func ParseHeader(r io.Reader) (Header, error) {
	fr := &fieldReader{r: r}
	h := Header{
		Signature:          fr.uint32("Header.Signature"),
		Version:            fr.uint32("Header.Version"),
		NumberOfStreams:    fr.uint32("Header.NumberOfStreams"),
		StreamDirectoryRva: fr.uint32("Header.StreamDirectoryRva"),
		CheckSum:           fr.uint32("Header.CheckSum"),
		TimeDateStamp:      fr.uint32("Header.TimeDateStamp"),
		Flags:              DumpType(fr.uint64("Header.Flags")),
	}
	if fr.err != nil {
		return Header{}, fr.err
	}
	if h.Signature != Signature {
		return Header{}, fmt.Errorf("not a minidump file: bad signature 0x%08x", h.Signature)
	}
	return h, nil
}

// MarshalBinary returns the 32-byte encoding of h.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, headerSize)
	for _, x := range []uint32{h.Signature, h.Version, h.NumberOfStreams, h.StreamDirectoryRva, h.CheckSum, h.TimeDateStamp} {
		b = binary.LittleEndian.AppendUint32(b, x)
	}
	return binary.LittleEndian.AppendUint64(b, uint64(h.Flags)), nil
}

// Time returns TimeDateStamp as a time.Time.
func (h Header) Time() time.Time {
	return time.Unix(int64(h.TimeDateStamp), 0).UTC()
}

func (h Header) String() string {
	return strings.Join([]string{
		"== MINIDUMP HEADER ==",
		fmt.Sprintf("Signature: 0x%08x", h.Signature),
		fmt.Sprintf("Version: 0x%x", h.Version),
		fmt.Sprintf("NumberOfStreams: %d", h.NumberOfStreams),
		fmt.Sprintf("StreamDirectoryRva: %d", h.StreamDirectoryRva),
		fmt.Sprintf("CheckSum: 0x%x", h.CheckSum),
		fmt.Sprintf("TimeDateStamp: %s", h.Time().Format(time.RFC3339)),
		fmt.Sprintf("Flags: %s", h.Flags),
	}, "\n")
}

// Directory is one entry of the stream directory (MINIDUMP_DIRECTORY).
type Directory struct {
	StreamType StreamType
	Location   LocationDescriptor
}

// ParseDirectory reads n directory entries from r.
func ParseDirectory(r io.Reader, n uint32) ([]Directory, error) {
	fr := &fieldReader{r: r}
	var dirs []Directory
	for k := uint32(0); k < n; k++ {
		d := Directory{
			StreamType: StreamType(fr.uint32("Directory.StreamType")),
			Location:   parseLocationDescriptor(fr),
		}
		if fr.err != nil {
			return nil, fmt.Errorf("directory entry %d: %w", k, fr.err)
		}
		verbosef("ParseDirectory: %s", d)
		dirs = append(dirs, d)
	}
	return dirs, nil
}

// AppendBinary appends the 12-byte encoding of d to b.
func (d Directory) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, uint32(d.StreamType))
	return d.Location.AppendBinary(b)
}

func (d Directory) String() string {
	return fmt.Sprintf("%s {%s}", d.StreamType, d.Location)
}

// StreamType identifies the contents of a stream (MINIDUMP_STREAM_TYPE).
type StreamType uint32

const (
	UnusedStream              StreamType = 0
	ReservedStream0           StreamType = 1
	ReservedStream1           StreamType = 2
	ThreadListStream          StreamType = 3
	ModuleListStream          StreamType = 4
	MemoryListStream          StreamType = 5
	ExceptionStream           StreamType = 6
	SystemInfoStream          StreamType = 7
	ThreadExListStream        StreamType = 8
	Memory64ListStream        StreamType = 9
	CommentStreamA            StreamType = 10
	CommentStreamW            StreamType = 11
	HandleDataStream          StreamType = 12
	FunctionTableStream       StreamType = 13
	UnloadedModuleListStream  StreamType = 14
	MiscInfoStream            StreamType = 15
	MemoryInfoListStream      StreamType = 16
	ThreadInfoListStream      StreamType = 17
	HandleOperationListStream StreamType = 18
	TokenStream               StreamType = 19
	JavaScriptDataStream      StreamType = 20
	SystemMemoryInfoStream    StreamType = 21
	ProcessVMCountersStream   StreamType = 22
	ThreadNamesStream         StreamType = 24
	LastReservedStream        StreamType = 0xffff
)

var streamTypeNames = map[StreamType]string{
	UnusedStream:              "UnusedStream",
	ReservedStream0:           "ReservedStream0",
	ReservedStream1:           "ReservedStream1",
	ThreadListStream:          "ThreadListStream",
	ModuleListStream:          "ModuleListStream",
	MemoryListStream:          "MemoryListStream",
	ExceptionStream:           "ExceptionStream",
	SystemInfoStream:          "SystemInfoStream",
	ThreadExListStream:        "ThreadExListStream",
	Memory64ListStream:        "Memory64ListStream",
	CommentStreamA:            "CommentStreamA",
	CommentStreamW:            "CommentStreamW",
	HandleDataStream:          "HandleDataStream",
	FunctionTableStream:       "FunctionTableStream",
	UnloadedModuleListStream:  "UnloadedModuleListStream",
	MiscInfoStream:            "MiscInfoStream",
	MemoryInfoListStream:      "MemoryInfoListStream",
	ThreadInfoListStream:      "ThreadInfoListStream",
	HandleOperationListStream: "HandleOperationListStream",
	TokenStream:               "TokenStream",
	JavaScriptDataStream:      "JavaScriptDataStream",
	SystemMemoryInfoStream:    "SystemMemoryInfoStream",
	ProcessVMCountersStream:   "ProcessVmCountersStream",
	ThreadNamesStream:         "ThreadNamesStream",
	LastReservedStream:        "LastReservedStream",
}

func (t StreamType) String() string {
	if s, ok := streamTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("StreamType(%d)", uint32(t))
}

// DumpType is the set of MINIDUMP_TYPE flags in Header.Flags.
type DumpType uint64

const (
	MiniDumpNormal                         DumpType = 0x00000000
	MiniDumpWithDataSegs                   DumpType = 0x00000001
	MiniDumpWithFullMemory                 DumpType = 0x00000002
	MiniDumpWithHandleData                 DumpType = 0x00000004
	MiniDumpFilterMemory                   DumpType = 0x00000008
	MiniDumpScanMemory                     DumpType = 0x00000010
	MiniDumpWithUnloadedModules            DumpType = 0x00000020
	MiniDumpWithIndirectlyReferencedMemory DumpType = 0x00000040
	MiniDumpFilterModulePaths              DumpType = 0x00000080
	MiniDumpWithProcessThreadData          DumpType = 0x00000100
	MiniDumpWithPrivateReadWriteMemory     DumpType = 0x00000200
	MiniDumpWithoutOptionalData            DumpType = 0x00000400
	MiniDumpWithFullMemoryInfo             DumpType = 0x00000800
	MiniDumpWithThreadInfo                 DumpType = 0x00001000
	MiniDumpWithCodeSegs                   DumpType = 0x00002000
	MiniDumpWithoutAuxiliaryState          DumpType = 0x00004000
	MiniDumpWithFullAuxiliaryState         DumpType = 0x00008000
	MiniDumpWithPrivateWriteCopyMemory     DumpType = 0x00010000
	MiniDumpIgnoreInaccessibleMemory       DumpType = 0x00020000
	MiniDumpWithTokenInformation           DumpType = 0x00040000
	MiniDumpWithModuleHeaders              DumpType = 0x00080000
	MiniDumpFilterTriage                   DumpType = 0x00100000
)

var dumpTypeNames = []struct {
	flag DumpType
	name string
}{
	{MiniDumpWithDataSegs, "WithDataSegs"},
	{MiniDumpWithFullMemory, "WithFullMemory"},
	{MiniDumpWithHandleData, "WithHandleData"},
	{MiniDumpFilterMemory, "FilterMemory"},
	{MiniDumpScanMemory, "ScanMemory"},
	{MiniDumpWithUnloadedModules, "WithUnloadedModules"},
	{MiniDumpWithIndirectlyReferencedMemory, "WithIndirectlyReferencedMemory"},
	{MiniDumpFilterModulePaths, "FilterModulePaths"},
	{MiniDumpWithProcessThreadData, "WithProcessThreadData"},
	{MiniDumpWithPrivateReadWriteMemory, "WithPrivateReadWriteMemory"},
	{MiniDumpWithoutOptionalData, "WithoutOptionalData"},
	{MiniDumpWithFullMemoryInfo, "WithFullMemoryInfo"},
	{MiniDumpWithThreadInfo, "WithThreadInfo"},
	{MiniDumpWithCodeSegs, "WithCodeSegs"},
	{MiniDumpWithoutAuxiliaryState, "WithoutAuxiliaryState"},
	{MiniDumpWithFullAuxiliaryState, "WithFullAuxiliaryState"},
	{MiniDumpWithPrivateWriteCopyMemory, "WithPrivateWriteCopyMemory"},
	{MiniDumpIgnoreInaccessibleMemory, "IgnoreInaccessibleMemory"},
	{MiniDumpWithTokenInformation, "WithTokenInformation"},
	{MiniDumpWithModuleHeaders, "WithModuleHeaders"},
	{MiniDumpFilterTriage, "FilterTriage"},
}

func (t DumpType) String() string {
	if t == MiniDumpNormal {
		return "Normal"
	}
	var names []string
	rest := t
	for _, n := range dumpTypeNames {
		if t&n.flag != 0 {
			names = append(names, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint64(rest)))
	}
	return strings.Join(names, "|")
}
