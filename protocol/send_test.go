package protocol

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockConn struct {
	writtenData []byte
	err         error
}

func (m *MockConn) Write(data []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.writtenData = append(m.writtenData, data...)
	return len(data), nil
}

func (m *MockConn) Read(b []byte) (int, error)         { return 0, nil }
func (m *MockConn) Close() error                       { return nil }
func (m *MockConn) LocalAddr() net.Addr                { return nil }
func (m *MockConn) RemoteAddr() net.Addr               { return nil }
func (m *MockConn) SetDeadline(t time.Time) error      { return nil }
func (m *MockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockConn) SetWriteDeadline(t time.Time) error { return nil }

func TestWriteResponse(t *testing.T) {
	tests := []struct {
		name     string
		accepted bool
		expected []byte
	}{
		{"Accept", true, []byte{0x06}},
		{"Reject", false, []byte{0x14}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockConn := &MockConn{}

			require.NoError(t, WriteResponse(mockConn, tt.accepted))
			assert.Equal(t, tt.expected, mockConn.writtenData)
		})
	}
}

func TestWriteResponseFailure(t *testing.T) {
	mockConn := &MockConn{err: errors.New("broken pipe")}

	err := WriteResponse(mockConn, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestSendHeader(t *testing.T) {
	mockConn := &MockConn{}

	require.NoError(t, SendHeader(mockConn, "notes.txt", 11))

	expectedData := []byte{0x02, 'n', 'o', 't', 'e', 's', '.', 't', 'x', 't', 0x1d, '1', '1', 0x03}
	assert.Equal(t, expectedData, mockConn.writtenData)
}

func TestSendTrailer(t *testing.T) {
	mockConn := &MockConn{}

	require.NoError(t, SendTrailer(mockConn))
	assert.Equal(t, []byte{0x05, 0x04}, mockConn.writtenData)
}

func TestSendHeaderInvalidName(t *testing.T) {
	mockConn := &MockConn{}

	err := SendHeader(mockConn, "bad\x1dname.txt", 11)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Empty(t, mockConn.writtenData)
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"notes.txt", false},
		{"", false},
		{"with\x03length end", false},
		{"\x1d", true},
		{"a\x1db", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.name), func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
