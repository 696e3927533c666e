package minidump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
)

// saveCursor records the current position of src and returns a function that
// seeks back to it. The returned function is meant to be deferred with a
// pointer to the caller's named error result; a failed restore is reported
// only if nothing else failed first.
func saveCursor(src io.Seeker) (restore func(errp *error), err error) {
	pos, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("saving source position: %w", err)
	}
	return func(errp *error) {
		if _, err := src.Seek(pos, io.SeekStart); err != nil && *errp == nil {
			*errp = fmt.Errorf("restoring source position %d: %w", pos, err)
		}
	}, nil
}

// seekTo moves rs to the absolute file offset off.
func seekTo(rs io.Seeker, off uint64) error {
	if off > math.MaxInt64 {
		return fmt.Errorf("file offset 0x%x: %w", off, ErrOffsetOverflow)
	}
	if _, err := rs.Seek(int64(off), io.SeekStart); err != nil {
		return fmt.Errorf("seeking to file offset 0x%x: %w", off, err)
	}
	return nil
}

// maxPrealloc caps how much readN allocates before any data arrives.
const maxPrealloc = 1 << 20

// readN reads exactly n bytes from r. The buffer grows with the bytes that
// actually arrive, so a size field larger than the file fails with
// io.ErrUnexpectedEOF rather than allocating n bytes up front.
func readN(r io.Reader, n uint64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("read of 0x%x bytes: %w", n, ErrOffsetOverflow)
	}
	var buf bytes.Buffer
	buf.Grow(int(min(n, maxPrealloc)))
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// ctxReadSeeker checks ctx before every Read and Seek. These calls are the
// only points where a context-aware operation can be interrupted.
type ctxReadSeeker struct {
	ctx context.Context
	rs  io.ReadSeeker
}

// withContext returns rs itself when ctx can never be cancelled.
func withContext(ctx context.Context, rs io.ReadSeeker) io.ReadSeeker {
	if ctx == nil || ctx.Done() == nil {
		return rs
	}
	return &ctxReadSeeker{ctx: ctx, rs: rs}
}

func (c *ctxReadSeeker) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.rs.Read(p)
}

func (c *ctxReadSeeker) Seek(offset int64, whence int) (int64, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.rs.Seek(offset, whence)
}

// ReadStream reads the bytes of the stream at loc from src into a new buffer.
// Exactly loc.DataSize bytes are read; the position of src is left unchanged.
func ReadStream(src io.ReadSeeker, loc LocationDescriptor) ([]byte, error) {
	return ReadStreamContext(context.Background(), src, loc)
}

// ReadStreamContext is like ReadStream but stops at the next Seek or Read of
// src once ctx is done.
func ReadStreamContext(ctx context.Context, src io.ReadSeeker, loc LocationDescriptor) (data []byte, err error) {
	restore, err := saveCursor(src)
	if err != nil {
		return nil, err
	}
	defer restore(&err)

	rs := withContext(ctx, src)
	if err := seekTo(rs, uint64(loc.Rva)); err != nil {
		return nil, err
	}
	data, err = readN(rs, uint64(loc.DataSize))
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrTruncatedInput
		}
		return nil, fmt.Errorf("reading stream {%s}: %w", loc, err)
	}
	return data, nil
}
