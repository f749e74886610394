package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// ErrReadFailure is returned when the stream fails or ends before the
// expected byte or terminator was read.
var ErrReadFailure = errors.New("read failure")

// ErrUnknownResponse is returned by ParseResponse for a byte that is neither
// Accept nor Reject.
var ErrUnknownResponse = errors.New("unknown response byte")

// ReadField returns the bytes preceding terminator. The terminator itself is
// left in r and must be consumed with ReadByte.
func ReadField(r *bufio.Reader, terminator byte) ([]byte, error) {
	var field []byte
	for {
		chunk, err := r.ReadSlice(terminator)
		switch {
		case err == nil:
			field = append(field, chunk[:len(chunk)-1]...)
			if err := r.UnreadByte(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrReadFailure, err)
			}
			return field, nil
		case errors.Is(err, bufio.ErrBufferFull):
			field = append(field, chunk...)
		default:
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("%w: %w", ErrReadFailure, err)
		}
	}
}

// ReadByte reads a single byte. A NUL byte is a valid value; only a failed
// or exhausted stream is an error.
func ReadByte(r *bufio.Reader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("%w: %w", ErrReadFailure, err)
	}
	return b, nil
}

// ParseLength parses the leading decimal digits of field, strtoll style:
// leading ASCII whitespace and a sign are accepted, parsing stops at the
// first non-digit and values outside int64 saturate. A field without digits
// yields 0.
func ParseLength(field []byte) int64 {
	i := 0
	for i < len(field) && isSpace(field[i]) {
		i++
	}

	negative := false
	if i < len(field) && (field[i] == '+' || field[i] == '-') {
		negative = field[i] == '-'
		i++
	}

	var n uint64
	limit := uint64(math.MaxInt64)
	if negative {
		limit++
	}
	for ; i < len(field) && field[i] >= '0' && field[i] <= '9'; i++ {
		d := uint64(field[i] - '0')
		if n > (limit-d)/10 {
			n = limit
			break
		}
		n = n*10 + d
	}

	if negative {
		if n == limit {
			return math.MinInt64
		}
		return -int64(n)
	}
	return int64(n)
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Basename returns the last element of name. Both '/' and '\' separate
// elements, so a name sent from any platform cannot carry directories.
// Trailing separators are dropped; an empty name returns "." and a name made
// only of separators returns "/".
func Basename(name string) string {
	if name == "" {
		return "."
	}

	trimmed := strings.TrimRight(name, `/\`)
	if trimmed == "" {
		return "/"
	}

	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// DecodeHeader consumes the Start marker and both header fields including
// their terminators. The returned name is already passed through Basename.
func DecodeHeader(r *bufio.Reader) (string, int64, error) {
	marker, err := ReadByte(r)
	if err != nil {
		return "", 0, err
	}
	if marker != Start {
		return "", 0, fmt.Errorf("[DecodeHeader] - unexpected marker 0x%02x", marker)
	}

	name, err := ReadField(r, FieldEnd)
	if err != nil {
		return "", 0, err
	}
	if _, err := ReadByte(r); err != nil {
		return "", 0, err
	}

	digits, err := ReadField(r, LengthEnd)
	if err != nil {
		return "", 0, err
	}
	if _, err := ReadByte(r); err != nil {
		return "", 0, err
	}

	return Basename(string(name)), ParseLength(digits), nil
}

// ParseResponse interprets the byte the receiver answered with.
func ParseResponse(b byte) (bool, error) {
	switch b {
	case Accept:
		return true, nil
	case Reject:
		return false, nil
	default:
		return false, fmt.Errorf("%w: 0x%02x", ErrUnknownResponse, b)
	}
}
