// Package envelope implements the ZISK binary input envelope.
//
// Layout (all multi-byte integers little-endian):
//
//	offset  size  field
//	0       4     magic "ZISK"
//	4       2     major version
//	6       2     minor version
//	8       8     payload length in bytes
//	16      n     payload
//
// The external toolchain consumes this file via `-i <path>`. Readers reject
// any envelope whose length field disagrees with the bytes that follow it.
package envelope

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Envelope layout constants.
const (
	// Magic identifies the format.
	Magic = "ZISK"
	// VersionMajor is the major version written by this package.
	VersionMajor uint16 = 1
	// VersionMinor is the minor version written by this package.
	VersionMinor uint16 = 0
	// HeaderSize is the fixed header size in bytes.
	HeaderSize = 16
	// MaxPayloadSize bounds payloads accepted by readers (1 GiB).
	MaxPayloadSize = 1 << 30
)

// ErrorKind classifies envelope decoding errors.
type ErrorKind int

const (
	// ErrorPartial indicates a truncated header.
	ErrorPartial ErrorKind = iota
	// ErrorMagic indicates the magic bytes do not match.
	ErrorMagic
	// ErrorVersion indicates an unsupported major version.
	ErrorVersion
	// ErrorLength indicates the length field disagrees with the payload.
	ErrorLength
	// ErrorTooLarge indicates a payload above MaxPayloadSize.
	ErrorTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorPartial:
		return "partial"
	case ErrorMagic:
		return "bad_magic"
	case ErrorVersion:
		return "unsupported_version"
	case ErrorLength:
		return "length_mismatch"
	case ErrorTooLarge:
		return "too_large"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error represents an envelope decoding error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envelope: %s: %v", e.Msg, e.Err)
	}
	return "envelope: " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an envelope error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var envErr *Error
	if errors.As(err, &envErr) {
		return envErr.Kind == kind
	}
	return false
}

// Header is the decoded fixed-size envelope header.
type Header struct {
	Major  uint16
	Minor  uint16
	Length uint64
}

// Envelope is a decoded envelope.
type Envelope struct {
	Header  Header
	Payload []byte
}

// AppendHeader appends the header for a payload of n bytes to dst.
func AppendHeader(dst []byte, n int) []byte {
	dst = append(dst, Magic...)
	dst = binary.LittleEndian.AppendUint16(dst, VersionMajor)
	dst = binary.LittleEndian.AppendUint16(dst, VersionMinor)
	return binary.LittleEndian.AppendUint64(dst, uint64(n))
}

// Encode returns header followed by payload.
func Encode(payload []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = AppendHeader(buf, len(payload))
	return append(buf, payload...)
}

// Write writes a complete envelope to w and returns the number of bytes written.
func Write(w io.Writer, payload []byte) (int64, error) {
	header := AppendHeader(make([]byte, 0, HeaderSize), len(payload))
	n, err := w.Write(header)
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(payload)
	return int64(n + m), err
}

// ParseHeader decodes and validates a header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, &Error{
			Kind: ErrorPartial,
			Msg:  fmt.Sprintf("header is %d bytes, need %d", len(b), HeaderSize),
		}
	}
	if string(b[:4]) != Magic {
		return Header{}, &Error{
			Kind: ErrorMagic,
			Msg:  fmt.Sprintf("bad magic %q", b[:4]),
		}
	}
	h := Header{
		Major:  binary.LittleEndian.Uint16(b[4:6]),
		Minor:  binary.LittleEndian.Uint16(b[6:8]),
		Length: binary.LittleEndian.Uint64(b[8:16]),
	}
	if h.Major != VersionMajor {
		return Header{}, &Error{
			Kind: ErrorVersion,
			Msg:  fmt.Sprintf("unsupported major version %d (want %d)", h.Major, VersionMajor),
		}
	}
	if h.Length > MaxPayloadSize {
		return Header{}, &Error{
			Kind: ErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", h.Length, MaxPayloadSize),
		}
	}
	return h, nil
}

// Decode decodes an in-memory envelope. The length field must match the
// number of bytes after the header exactly.
func Decode(data []byte) (*Envelope, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if got := uint64(len(data) - HeaderSize); got != h.Length {
		return nil, &Error{
			Kind: ErrorLength,
			Msg:  fmt.Sprintf("length field %d, payload has %d bytes", h.Length, got),
		}
	}
	return &Envelope{Header: h, Payload: data[HeaderSize:]}, nil
}

// Read reads exactly one envelope from r. Trailing bytes after the declared
// payload are rejected as a length mismatch.
func Read(r io.Reader) (*Envelope, error) {
	var headerBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		return nil, &Error{Kind: ErrorPartial, Msg: "failed to read header", Err: err}
	}
	h, err := ParseHeader(headerBuf[:])
	if err != nil {
		return nil, err
	}

	var payload bytes.Buffer
	n, err := io.Copy(&payload, io.LimitReader(r, int64(h.Length)))
	if err != nil {
		return nil, &Error{Kind: ErrorPartial, Msg: "failed to read payload", Err: err}
	}
	if uint64(n) != h.Length {
		return nil, &Error{
			Kind: ErrorLength,
			Msg:  fmt.Sprintf("length field %d, payload has %d bytes", h.Length, n),
		}
	}

	var extra [1]byte
	if m, _ := io.ReadFull(r, extra[:]); m > 0 {
		return nil, &Error{
			Kind: ErrorLength,
			Msg:  fmt.Sprintf("trailing bytes after %d-byte payload", h.Length),
		}
	}

	return &Envelope{Header: h, Payload: payload.Bytes()}, nil
}
