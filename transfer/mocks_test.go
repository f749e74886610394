package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// mockConn serves one chunk per Read call so tests can tell which parts of
// a frame the session actually pulled from the connection.
type mockConn struct {
	chunks     [][]byte
	chunksRead int
	pending    []byte
	readErr    error

	written  bytes.Buffer
	writeErr error
	closed   bool
}

func newMockConn(chunks ...[]byte) *mockConn {
	return &mockConn{chunks: chunks}
}

func (m *mockConn) Read(p []byte) (int, error) {
	if len(m.pending) == 0 {
		if m.chunksRead == len(m.chunks) {
			if m.readErr != nil {
				return 0, m.readErr
			}
			return 0, io.EOF
		}
		m.pending = m.chunks[m.chunksRead]
		m.chunksRead++
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *mockConn) Write(p []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.written.Write(p)
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

func (m *mockConn) LocalAddr() net.Addr                { return nil }
func (m *mockConn) RemoteAddr() net.Addr               { return nil }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

type promptCall struct {
	filename string
	length   int64
}

type scriptedPrompter struct {
	mu       sync.Mutex
	decision Decision
	err      error
	calls    []promptCall
}

func (p *scriptedPrompter) PromptAcceptTransfer(_ context.Context, filename string, length int64) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, promptCall{filename: filename, length: length})
	return p.decision, p.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) NotifyError(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

type failingWriteFs struct {
	afero.Fs
}

func (f failingWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return failingWriteFile{File: file}, nil
}

type failingWriteFile struct {
	afero.File
}

func (failingWriteFile) Write([]byte) (int, error) {
	return 0, errors.New("no space left on device")
}
