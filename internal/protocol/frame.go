package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrameBytes bounds one encoded frame.
const DefaultMaxFrameBytes = 1 << 20

var (
	// ErrFrameTooLarge indicates a frame exceeded the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrMalformedFrame indicates a frame could not be decoded.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Frame is one tagged payload on the wire.
type Frame struct {
	Command Command
	Payload string
}

// FrameReader yields frames in arrival order.
type FrameReader interface {
	ReadFrame(ctx context.Context) (Frame, error)
}

// FrameWriter sends frames in program order.
type FrameWriter interface {
	WriteFrame(ctx context.Context, f Frame) error
}

// MarshalBinary encodes f for message-oriented transports: tag byte then raw payload.
func MarshalBinary(f Frame) []byte {
	out := make([]byte, 0, len(f.Payload)+1)
	out = append(out, byte(f.Command))
	return append(out, f.Payload...)
}

// UnmarshalBinary decodes a frame produced by MarshalBinary.
func UnmarshalBinary(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty message", ErrMalformedFrame)
	}
	return Frame{Command: Command(data[0]), Payload: string(data[1:])}, nil
}

// AppendStream appends the stream encoding of f: tag byte, base64 payload, newline.
func AppendStream(dst []byte, f Frame) []byte {
	dst = append(dst, byte(f.Command))
	dst = base64.StdEncoding.AppendEncode(dst, []byte(f.Payload))
	return append(dst, '\n')
}

// DecodeStream decodes one stream line without its trailing newline.
func DecodeStream(line []byte) (Frame, error) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 {
		return Frame{}, fmt.Errorf("%w: empty line", ErrMalformedFrame)
	}
	payload, err := base64.StdEncoding.DecodeString(string(line[1:]))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return Frame{Command: Command(line[0]), Payload: string(payload)}, nil
}

// StreamCodec frames a byte stream with the newline-delimited encoding.
type StreamCodec struct {
	rw      io.ReadWriter
	scanner *bufio.Scanner
	max     int

	wmu sync.Mutex
	buf []byte
}

// NewStreamCodec wraps rw. maxBytes <= 0 selects DefaultMaxFrameBytes.
func NewStreamCodec(rw io.ReadWriter, maxBytes int) *StreamCodec {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	initial := 4096
	if initial > maxBytes {
		initial = maxBytes
	}
	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 0, initial), maxBytes)
	return &StreamCodec{rw: rw, scanner: scanner, max: maxBytes}
}

// ReadFrame blocks until a full frame arrives. ctx is checked before reading;
// cancel a blocked read by closing the underlying stream.
func (c *StreamCodec) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return Frame{}, fmt.Errorf("%w: exceeds %d bytes", ErrFrameTooLarge, c.max)
			}
			return Frame{}, err
		}
		return Frame{}, io.EOF
	}
	return DecodeStream(c.scanner.Bytes())
}

// WriteFrame writes one frame.
func (c *StreamCodec) WriteFrame(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.buf = AppendStream(c.buf[:0], f)
	if len(c.buf) > c.max {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(c.buf))
	}
	_, err := c.rw.Write(c.buf)
	return err
}
