package minidump_test

import (
	"bytes"
	"context"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/tombergan/minidump/minidump"
	"github.com/tombergan/minidump/minidump/minidumptest"
)

// fileRange is a half-open range of file offsets touched by one Read.
type fileRange struct {
	start, end int64
}

var _ = Describe("AddressSpace", func() {
	var (
		mockCtrl *gomock.Controller
		src      *MockReadSeeker
		backing  *bytes.Reader
		reads    []fileRange
		segs     minidump.Segments
		as       *minidump.AddressSpace
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		b := &minidumptest.Builder{}
		b.AddMemory64List(
			minidumptest.Region{Addr: 0x10000, Data: bytes.Repeat([]byte("A"), 64)},
			minidumptest.Region{Addr: 0x20000, Data: []byte("BBBBxyzBBBB")},
			minidumptest.Region{Addr: 0x30000, Data: nil},
			minidumptest.Region{Addr: 0x40000, Data: []byte("xyz")},
		)
		img := b.Bytes()
		f, err := minidump.NewFile(bytes.NewReader(img))
		Expect(err).ToNot(HaveOccurred())
		segs, err = f.Segments()
		Expect(err).ToNot(HaveOccurred())

		backing = bytes.NewReader(img)
		reads = nil
		src = NewMockReadSeeker(mockCtrl)
		as = minidump.NewAddressSpace(segs, src)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	// passThrough makes src behave like backing and records every Read.
	passThrough := func() {
		src.EXPECT().Seek(gomock.Any(), gomock.Any()).
			DoAndReturn(func(offset int64, whence int) (int64, error) {
				return backing.Seek(offset, whence)
			}).
			AnyTimes()
		src.EXPECT().Read(gomock.Any()).
			DoAndReturn(func(p []byte) (int, error) {
				pos, _ := backing.Seek(0, io.SeekCurrent)
				n, err := backing.Read(p)
				reads = append(reads, fileRange{pos, pos + int64(n)})
				return n, err
			}).
			AnyTimes()
	}

	fileRangeOf := func(s minidump.MemorySegment) fileRange {
		start := int64(s.StartFileAddress())
		return fileRange{start, start + int64(s.Size())}
	}

	expectReadsWithin := func(r fileRange) {
		Expect(reads).ToNot(BeEmpty())
		for _, rd := range reads {
			Expect(rd.start).To(BeNumerically(">=", r.start))
			Expect(rd.end).To(BeNumerically("<=", r.end))
		}
	}

	Context("when reading", func() {
		BeforeEach(passThrough)

		It("should only touch the bytes of the containing segment", func() {
			data, err := as.Read(0x20004, 3)

			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal("xyz"))
			expectReadsWithin(fileRangeOf(segs[1]))
		})

		It("should restore the source position", func() {
			backing.Seek(5, io.SeekStart)

			_, err := as.Read(0x10010, 16)

			Expect(err).ToNot(HaveOccurred())
			Expect(backing.Seek(0, io.SeekCurrent)).To(Equal(int64(5)))
		})

		It("should restore the source position after a failed read", func() {
			backing.Seek(9, io.SeekStart)

			_, err := as.Read(0x2000a, 2)

			Expect(err).To(MatchError(minidump.ErrOutOfRange))
			Expect(reads).To(BeEmpty())
			Expect(backing.Seek(0, io.SeekCurrent)).To(Equal(int64(9)))
		})

		It("should report unmapped addresses", func() {
			_, err := as.Read(0x30000, 1)

			var nerr *minidump.AddressNotMappedError
			Expect(errors.As(err, &nerr)).To(BeTrue())
			Expect(nerr.Addr).To(Equal(uint64(0x30000)))
			Expect(err).To(MatchError(minidump.ErrAddressNotMapped))
		})
	})

	Context("when searching", func() {
		BeforeEach(passThrough)

		It("should find matches in every segment in list order", func() {
			matches, err := as.Search([]byte("xyz"), false, 0)

			Expect(err).ToNot(HaveOccurred())
			Expect(matches).To(Equal([]uint64{0x20004, 0x40000}))
		})

		It("should stop at the first segment with a match", func() {
			matches, err := as.Search([]byte("xyz"), true, 4)

			Expect(err).ToNot(HaveOccurred())
			Expect(matches).To(Equal([]uint64{0x20004}))
			for _, rd := range reads {
				Expect(rd.end).To(BeNumerically("<=", fileRangeOf(segs[1]).end))
			}
		})

		It("should only read the searched segment", func() {
			matches, err := segs[0].Search([]byte("B"), src, false, 0)

			Expect(err).ToNot(HaveOccurred())
			Expect(matches).To(BeEmpty())
			expectReadsWithin(fileRangeOf(segs[0]))
		})

		It("should stop when the context is canceled", func() {
			backing.Seek(3, io.SeekStart)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := as.SearchContext(ctx, []byte("zz"), true, 8)

			Expect(err).To(MatchError(context.Canceled))
			Expect(reads).To(BeEmpty())
			Expect(backing.Seek(0, io.SeekCurrent)).To(Equal(int64(3)))
		})
	})

	Context("when the source fails", func() {
		It("should not read if the position cannot be saved", func() {
			src.EXPECT().Seek(int64(0), io.SeekCurrent).Return(int64(0), errors.New("seek failed"))
			src.EXPECT().Read(gomock.Any()).Times(0)

			_, err := as.Read(0x10000, 4)

			Expect(err).To(MatchError(ContainSubstring("seek failed")))
		})

		It("should report a failure to restore the position", func() {
			off := int64(segs[0].StartFileAddress())
			gomock.InOrder(
				src.EXPECT().Seek(int64(0), io.SeekCurrent).Return(int64(7), nil),
				src.EXPECT().Seek(off, io.SeekStart).Return(off, nil),
				src.EXPECT().Read(gomock.Len(4)).DoAndReturn(func(p []byte) (int, error) {
					return copy(p, "AAAA"), nil
				}),
				src.EXPECT().Seek(int64(7), io.SeekStart).Return(int64(0), errors.New("restore failed")),
			)

			_, err := as.Read(0x10000, 4)

			Expect(err).To(MatchError(ContainSubstring("restore failed")))
		})

		It("should keep the first error when restore also fails", func() {
			gomock.InOrder(
				src.EXPECT().Seek(int64(0), io.SeekCurrent).Return(int64(7), nil),
				src.EXPECT().Seek(gomock.Any(), io.SeekStart).Return(int64(0), errors.New("bad seek")),
				src.EXPECT().Seek(int64(7), io.SeekStart).Return(int64(0), errors.New("restore failed")),
			)

			_, err := as.Read(0x10000, 4)

			Expect(err).To(MatchError(ContainSubstring("bad seek")))
			Expect(err.Error()).ToNot(ContainSubstring("restore failed"))
		})
	})
})

var _ = Describe("FindSegment", func() {
	mk := func(va, size uint64) minidump.MemorySegment {
		s, err := minidump.NewMemorySegment(va, size, 0)
		Expect(err).ToNot(HaveOccurred())
		return s
	}

	It("should find segments of an unsorted list", func() {
		as := minidump.NewAddressSpace(minidump.Segments{
			mk(0x3000, 0x100), mk(0x1000, 0x100), mk(0x2000, 0x100),
		}, nil)

		for _, va := range []uint64{0x1000, 0x10ff, 0x2080, 0x3000} {
			s, ok := as.FindSegment(va)
			Expect(ok).To(BeTrue())
			Expect(s.Contains(va)).To(BeTrue())
		}
		for _, va := range []uint64{0, 0xfff, 0x1100, 0x2100, 0x3100} {
			_, ok := as.FindSegment(va)
			Expect(ok).To(BeFalse(), "0x%x", va)
		}
	})

	It("should never return an empty segment", func() {
		as := minidump.NewAddressSpace(minidump.Segments{mk(0x1000, 0)}, nil)

		_, ok := as.FindSegment(0x1000)

		Expect(ok).To(BeFalse())
	})

	It("should look past a nested segment", func() {
		outer, inner := mk(0x1000, 0x100), mk(0x1080, 0x10)
		as := minidump.NewAddressSpace(minidump.Segments{outer, inner}, nil)

		s, ok := as.FindSegment(0x10a0)
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal(outer))

		s, ok = as.FindSegment(0x1088)
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal(inner))
	})
})
