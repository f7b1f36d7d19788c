package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/vicictl/internal/protocol"
)

const HeaderLen = 4

var (
	ErrBodyTooLarge = fmt.Errorf("%w: frame: body too large", protocol.ErrSizeLimit)
	// ErrPartialFrame marks a read that failed after consuming part of a
	// frame. The stream is no longer aligned on a frame boundary.
	ErrPartialFrame = errors.New("frame: partial frame read")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxBodyBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxBodyBytes: 512 * 1024,
	}
}

// ReadFrame reads one length-prefixed body from r.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var hdr [HeaderLen]byte
	if n, err := io.ReadFull(r, hdr[:]); err != nil {
		if n > 0 {
			return nil, fmt.Errorf("%w: %w", ErrPartialFrame, protocol.Transport("read frame header", err))
		}
		return nil, protocol.Transport("read frame header", err)
	}

	l := binary.BigEndian.Uint32(hdr[:])
	if l > limits.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %w: %d > %d", ErrPartialFrame, ErrBodyTooLarge, l, limits.MaxBodyBytes)
	}

	body := make([]byte, l)
	if l > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPartialFrame, protocol.Transport("read frame body", err))
		}
	}
	return body, nil
}

// WriteFrame writes body with its length prefix in a single write. The size
// check happens before anything reaches w.
func WriteFrame(w io.Writer, body []byte, limits Limits) error {
	if uint64(len(body)) > uint64(limits.MaxBodyBytes) {
		return fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, len(body), limits.MaxBodyBytes)
	}
	buf := Encode(body)
	n, err := w.Write(buf)
	if err != nil {
		return protocol.Transport("write frame", err)
	}
	if n != len(buf) {
		return protocol.Transport("write frame", io.ErrShortWrite)
	}
	return nil
}

// Encode returns the length prefix followed by body.
func Encode(body []byte) []byte {
	buf := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint32(buf[0:HeaderLen], uint32(len(body)))
	copy(buf[HeaderLen:], body)
	return buf
}
