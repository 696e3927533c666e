package datarecording

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/xid"

	"github.com/tombergan/minidump/minidump"
)

// Table names used by Session.
const (
	SegmentsTable = "segments"
	MatchesTable  = "matches"
)

// SegmentEntry is a row of the segments table. Addresses are hex strings
// because SQLite integers cannot hold the upper half of the uint64 range.
type SegmentEntry struct {
	RunID        string
	Dump         string
	SegmentIndex int
	VAStart      string
	VAEnd        string
	RVA          string
	Size         string
}

// MatchEntry is a row of the matches table.
type MatchEntry struct {
	RunID        string
	Dump         string
	Pattern      string // hex
	SegmentIndex int    // -1 if the address is in no segment
	Address      string
}

// Session records the segments and search hits of one dump under a single
// run ID, so several runs can share a database.
type Session struct {
	RunID string
	Dump  string
	rec   DataRecorder
}

// NewSession creates the segments and matches tables in rec and returns a
// session with a fresh run ID.
func NewSession(rec DataRecorder, dump string) *Session {
	rec.CreateTable(SegmentsTable, SegmentEntry{})
	rec.CreateTable(MatchesTable, MatchEntry{})

	return &Session{
		RunID: xid.New().String(),
		Dump:  dump,
		rec:   rec,
	}
}

func hexAddr(x uint64) string {
	return fmt.Sprintf("0x%016x", x)
}

// RecordSegments buffers one segments row per segment, in list order.
func (s *Session) RecordSegments(segs minidump.Segments) {
	for k, seg := range segs {
		s.rec.InsertData(SegmentsTable, SegmentEntry{
			RunID:        s.RunID,
			Dump:         s.Dump,
			SegmentIndex: k,
			VAStart:      hexAddr(seg.StartVirtualAddress()),
			VAEnd:        hexAddr(seg.EndVirtualAddress()),
			RVA:          hexAddr(seg.StartFileAddress()),
			Size:         hexAddr(seg.Size()),
		})
	}
}

// RecordMatches buffers one matches row per address in matches. Each match
// is attributed to the first segment of segs that contains it.
func (s *Session) RecordMatches(pattern []byte, segs minidump.Segments, matches []uint64) {
	p := hex.EncodeToString(pattern)
	for _, va := range matches {
		idx := -1
		for k, seg := range segs {
			if seg.Contains(va) {
				idx = k
				break
			}
		}
		s.rec.InsertData(MatchesTable, MatchEntry{
			RunID:        s.RunID,
			Dump:         s.Dump,
			Pattern:      p,
			SegmentIndex: idx,
			Address:      hexAddr(va),
		})
	}
}

// Flush writes everything buffered so far.
func (s *Session) Flush() {
	s.rec.Flush()
}

// OpenRecording opens a database written by Session for reading, with the
// segments and matches tables already mapped.
func OpenRecording(dbFilename string) (DataReader, error) {
	r, err := NewReader(dbFilename)
	if err != nil {
		return nil, err
	}
	r.MapTable(SegmentsTable, SegmentEntry{})
	r.MapTable(MatchesTable, MatchEntry{})
	return r, nil
}
