package minidump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// fieldReader decodes little-endian fixed-width fields from r.
// Interleaving error handling with every field is annoying, so the first
// error is stored in err and all later reads return zero.
type fieldReader struct {
	r   io.Reader
	off int64 // bytes consumed so far
	err error
	buf [8]byte
}

func (fr *fieldReader) read(n int, what string) []byte {
	if fr.err != nil {
		return nil
	}
	b := fr.buf[:n]
	if _, err := io.ReadFull(fr.r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrTruncatedInput
		}
		fr.err = fmt.Errorf("reading %s at offset %d: %w", what, fr.off, err)
		return nil
	}
	fr.off += int64(n)
	return b
}

func (fr *fieldReader) uint32(what string) uint32 {
	b := fr.read(4, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (fr *fieldReader) uint64(what string) uint64 {
	b := fr.read(8, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
