// This file contains the control bytes of the etherpush wire protocol
package protocol

// Control bytes framing a transfer request. A complete frame from the
// sender is
//
//	Start name FieldEnd length LengthEnd <response> payload DataEnd End
//
// where the response is a single byte written back by the receiver.
const (
	Start     byte = 0x02 // STX, a file transfer frame follows
	LengthEnd byte = 0x03 // ETX, terminates the decimal length field
	End       byte = 0x04 // EOT, trailing marker of the frame
	DataEnd   byte = 0x05 // ENQ, terminates the payload
	FieldEnd  byte = 0x1d // GS, terminates the filename field
)

// Response bytes sent by the receiver once the transfer was decided.
const (
	Accept byte = 0x06 // ACK
	// Reject is the value existing etherpush receivers answer with. It is
	// DC4, not NAK (0x15).
	Reject byte = 0x14
)

// DefaultPort is the TCP port receivers listen on.
const DefaultPort = 9001
