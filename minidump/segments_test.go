package minidump

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type segFields struct {
	VA, FileOffset, Size uint64
}

func fieldsOf(ss Segments) []segFields {
	var fs []segFields
	for _, s := range ss {
		fs = append(fs, segFields{s.StartVirtualAddress(), s.StartFileAddress(), s.Size()})
	}
	return fs
}

func TestBuildSimpleSegments(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	var want []segFields
	l := &MemoryList{}
	for k := 0; k < 50; k++ {
		f := segFields{
			VA:         rng.Uint64N(1 << 47),
			FileOffset: uint64(rng.Uint32()),
			Size:       uint64(rng.Uint32()),
		}
		want = append(want, f)
		l.Ranges = append(l.Ranges, MemoryDescriptor{
			StartOfMemoryRange: f.VA,
			Memory:             LocationDescriptor{DataSize: uint32(f.Size), Rva: uint32(f.FileOffset)},
		})
	}
	buf, err := l.MarshalBinary()
	require.NoError(t, err)

	// Each segment depends only on its own descriptor, so any order works.
	for round := 0; round < 3; round++ {
		got, err := BuildSimpleSegments(buf)
		require.NoError(t, err)
		if diff := cmp.Diff(want, fieldsOf(got)); diff != "" {
			t.Errorf("round %d: BuildSimpleSegments mismatch (-want +got):\n%s", round, diff)
		}
		for k, s := range got {
			assert.Equal(t, s.StartVirtualAddress()+s.Size(), s.EndVirtualAddress(), "segment %d", k)
		}

		rng.Shuffle(len(want), func(i, k int) {
			want[i], want[k] = want[k], want[i]
			l.Ranges[i], l.Ranges[k] = l.Ranges[k], l.Ranges[i]
		})
		buf, _ = l.MarshalBinary()
	}
}

func TestBuild64Segments(t *testing.T) {
	const base = 0x400
	l := &Memory64List{BaseRva: base, Ranges: []MemoryDescriptor64{
		{StartOfMemoryRange: 0x30000, DataSize: 0x100},
		{StartOfMemoryRange: 0x10000, DataSize: 0x20},
		{StartOfMemoryRange: 0x20000, DataSize: 0},
		{StartOfMemoryRange: 0x40000, DataSize: 0x8},
	}}
	buf, err := l.MarshalBinary()
	require.NoError(t, err)

	got, err := Build64Segments(buf)
	require.NoError(t, err)
	want := []segFields{
		{0x30000, base, 0x100},
		{0x10000, base + 0x100, 0x20},
		{0x20000, base + 0x120, 0},
		{0x40000, base + 0x120, 0x8},
	}
	if diff := cmp.Diff(want, fieldsOf(got)); diff != "" {
		t.Errorf("Build64Segments mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(0x128), got.TotalSize())
}

func TestBuild64SegmentsOverflow(t *testing.T) {
	tests := []struct {
		name string
		list *Memory64List
	}{
		{"running offset", &Memory64List{BaseRva: math.MaxUint64 - 0x10, Ranges: []MemoryDescriptor64{
			{StartOfMemoryRange: 0x1000, DataSize: 0x8},
			{StartOfMemoryRange: 0x2000, DataSize: 0x10},
		}}},
		{"virtual range", &Memory64List{Ranges: []MemoryDescriptor64{
			{StartOfMemoryRange: math.MaxUint64 - 1, DataSize: 0x10},
		}}},
	}
	for _, test := range tests {
		_, err := BuildSegments(test.list)
		assert.ErrorIs(t, err, ErrOffsetOverflow, test.name)
	}
}

func TestBuildSimpleSegmentsOverflow(t *testing.T) {
	l := &MemoryList{Ranges: []MemoryDescriptor{
		{StartOfMemoryRange: math.MaxUint64 - 3, Memory: LocationDescriptor{DataSize: 8, Rva: 0}},
	}}
	_, err := BuildSegments(l)
	assert.ErrorIs(t, err, ErrOffsetOverflow)
}

func TestBuildSegmentsTruncated(t *testing.T) {
	_, err := BuildSimpleSegments([]byte{2, 0, 0, 0, 1})
	assert.True(t, errors.Is(err, ErrTruncatedInput), "BuildSimpleSegments err=%v", err)
	_, err = Build64Segments([]byte{1, 0, 0, 0})
	assert.True(t, errors.Is(err, ErrTruncatedInput), "Build64Segments err=%v", err)
}

func TestOverlapping(t *testing.T) {
	mk := func(va, size uint64) MemorySegment {
		s, err := NewMemorySegment(va, size, 0)
		require.NoError(t, err)
		return s
	}
	ss := Segments{
		mk(0x3000, 0x100),
		mk(0x1000, 0x100),
		mk(0x1080, 0x10),
		mk(0x2000, 0),
		mk(0x1100, 0x10),
	}
	assert.Equal(t, [][2]int{{1, 2}}, ss.Overlapping())
	assert.Empty(t, ss[:2].Overlapping())
}

func TestSegmentsTable(t *testing.T) {
	s, _ := NewMemorySegment(0x7ff0, 0x20, 0x1c0)
	ss := Segments{s}
	assert.Equal(t, [][]string{{"0x7ff0", "0x1c0", "0x20"}}, ss.Table())
	assert.Equal(t, "VA Start: 0x7ff0, RVA: 0x1c0, Size: 0x20", ss.String())
}
