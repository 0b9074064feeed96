package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prefix marks the output line that carries the sidecar's listening port.
const Prefix = "PORT:"

// DefaultMaxLines is how many output lines are inspected before giving up.
const DefaultMaxLines = 10

// maxLineBytes caps the memory spent on a single line; longer lines are skipped.
const maxLineBytes = 64 * 1024

var (
	ErrPortNotFound     = errors.New("failed to read port from backend")
	ErrHandshakeTimeout = errors.New("timed out waiting for backend port")
)

// Result is the outcome of a handshake. Lines is the number of lines consumed,
// including the matching one.
type Result struct {
	Port  uint16
	Lines int
}

// ParseLine reports the port carried by a single handshake line.
// The line must start with Prefix; the rest is trimmed and parsed as a
// non-zero 16-bit decimal number.
func ParseLine(line string) (uint16, bool) {
	rest, ok := strings.CutPrefix(line, Prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 16)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint16(n), true
}

// ReadPort scans at most maxLines lines of r for a port line and stops at the
// first valid one. Malformed lines are skipped. When r is an io.ByteReader it
// is used directly; otherwise r is read one byte at a time so nothing past the
// matching line is consumed.
func ReadPort(r io.Reader, maxLines int) (Result, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	lr := newLineReader(r)
	var res Result
	for res.Lines < maxLines {
		line, err := lr.readLine()
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				return res, ErrPortNotFound
			}
			return res, fmt.Errorf("%w: %v", ErrPortNotFound, err)
		}
		res.Lines++
		if p, ok := ParseLine(line); ok {
			res.Port = p
			return res, nil
		}
		if err != nil {
			return res, ErrPortNotFound
		}
	}
	return res, ErrPortNotFound
}

// ReadPortContext is ReadPort bounded by ctx. On expiry the reader goroutine
// keeps running until r is closed; callers close the stream (or kill its
// writer) to release it.
func ReadPortContext(ctx context.Context, r io.Reader, maxLines int) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := ReadPort(r, maxLines)
		ch <- outcome{res: res, err: err}
	}()
	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, ErrHandshakeTimeout
		}
		return Result{}, ctx.Err()
	}
}

type lineReader struct {
	br io.ByteReader
}

func newLineReader(r io.Reader) *lineReader {
	if br, ok := r.(io.ByteReader); ok {
		return &lineReader{br: br}
	}
	return &lineReader{br: &byteReader{r: r}}
}

// readLine returns the next line without its terminator. A final line that is
// not newline-terminated is returned together with the read error.
func (l *lineReader) readLine() (string, error) {
	var sb strings.Builder
	overflow := false
	for {
		b, err := l.br.ReadByte()
		if err != nil {
			if overflow {
				return "", err
			}
			return sb.String(), err
		}
		if b == '\n' {
			if overflow {
				// counted as a line, never matches
				return " ", nil
			}
			return sb.String(), nil
		}
		if sb.Len() >= maxLineBytes {
			overflow = true
			continue
		}
		sb.WriteByte(b)
	}
}

type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	for {
		n, err := b.r.Read(b.buf[:])
		if n == 1 {
			return b.buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}
