package protocol

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrInvalidName is returned for file names a receiver could not read back
// as a single header field.
var ErrInvalidName = errors.New("invalid file name")

// ValidateName reports whether name can be framed. It must not contain the
// FieldEnd byte.
func ValidateName(name string) error {
	if strings.IndexByte(name, FieldEnd) >= 0 {
		return fmt.Errorf("%w: %q contains the field end byte", ErrInvalidName, name)
	}
	return nil
}

// EncodeHeader builds the part of a frame sent before the receiver answers.
// It does not validate name, see ValidateName.
func EncodeHeader(name string, length int64) []byte {
	digits := strconv.AppendInt(nil, length, 10)

	header := make([]byte, 0, len(name)+len(digits)+3)
	header = append(header, Start)
	header = append(header, name...)
	header = append(header, FieldEnd)
	header = append(header, digits...)
	header = append(header, LengthEnd)
	return header
}

// EncodeTrailer returns the bytes closing a frame after the payload.
func EncodeTrailer() []byte {
	return []byte{DataEnd, End}
}

// SendHeader validates name and writes the header. Nothing is written for
// an invalid name.
func SendHeader(w io.Writer, name string, length int64) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return SendData(w, EncodeHeader(name, length))
}

func SendTrailer(w io.Writer) error {
	return SendData(w, EncodeTrailer())
}

// WriteResponse writes the single byte answering a transfer request.
func WriteResponse(w io.Writer, accepted bool) error {
	response := Reject
	if accepted {
		response = Accept
	}
	return SendData(w, []byte{response})
}

func SendData(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}

	return nil
}
