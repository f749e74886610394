package listener

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"etherpush/protocol"
	"etherpush/transfer"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) NotifyError(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func acceptTo(path string) transfer.Prompter {
	return transfer.PrompterFunc(func(context.Context, string, int64) (transfer.Decision, error) {
		return transfer.Accept(path), nil
	})
}

func startListener(t *testing.T, prompter transfer.Prompter, notifier transfer.Notifier, opts ...transfer.Option) *Listener {
	t.Helper()

	l := New(Config{HostName: "127.0.0.1", Port: 0}, prompter, notifier, opts...)
	require.NoError(t, l.Start())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		assert.NoError(t, l.Serve(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		l.Close()
		<-served
		l.Wait()
	})
	return l
}

func dial(t *testing.T, l *Listener) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp4", l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResponse(t *testing.T, conn net.Conn) byte {
	t.Helper()
	response := make([]byte, 1)
	_, err := io.ReadFull(conn, response)
	require.NoError(t, err)
	return response[0]
}

func TestListenerReceivesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	notifier := &recordingNotifier{}
	l := startListener(t, acceptTo("/downloads/notes.txt"), notifier, transfer.WithFs(fs))

	conn := dial(t, l)
	require.NoError(t, protocol.SendHeader(conn, "notes.txt", 11))
	assert.Equal(t, protocol.Accept, readResponse(t, conn))

	_, err := conn.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, protocol.SendTrailer(conn))

	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "receiver closes the connection after the frame")

	require.Eventually(t, func() bool { return l.Stats().Done == 1 }, 5*time.Second, 10*time.Millisecond)

	content, err := afero.ReadFile(fs, "/downloads/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
	assert.Empty(t, notifier.Messages())
}

func TestListenerRejects(t *testing.T) {
	fs := afero.NewMemMapFs()
	prompter := transfer.PrompterFunc(func(context.Context, string, int64) (transfer.Decision, error) {
		return transfer.Reject(), nil
	})
	l := startListener(t, prompter, &recordingNotifier{}, transfer.WithFs(fs))

	conn := dial(t, l)
	require.NoError(t, protocol.SendHeader(conn, "notes.txt", 11))
	assert.Equal(t, protocol.Reject, readResponse(t, conn))

	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool { return l.Stats().Aborted == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), l.Stats().Done)
}

func TestListenerPendingPromptDoesNotBlockAccept(t *testing.T) {
	release := make(chan struct{})
	prompter := transfer.PrompterFunc(func(ctx context.Context, filename string, _ int64) (transfer.Decision, error) {
		if filename == "slow.txt" {
			<-release
		}
		return transfer.Reject(), nil
	})
	l := startListener(t, prompter, &recordingNotifier{})
	defer close(release)

	slow := dial(t, l)
	require.NoError(t, protocol.SendHeader(slow, "slow.txt", 1))
	require.Eventually(t, func() bool { return l.Stats().Accepted == 1 }, 5*time.Second, 10*time.Millisecond)

	fast := dial(t, l)
	require.NoError(t, protocol.SendHeader(fast, "fast.txt", 1))
	assert.Equal(t, protocol.Reject, readResponse(t, fast))
	assert.Equal(t, int64(2), l.Stats().Accepted)
}

func TestListenerBindFailureIsNotified(t *testing.T) {
	first := startListener(t, nil, &recordingNotifier{})
	port := first.Addr().(*net.TCPAddr).Port

	notifier := &recordingNotifier{}
	second := New(Config{HostName: "127.0.0.1", Port: port}, nil, notifier)

	err := second.Start()
	require.Error(t, err)
	assert.Nil(t, second.Addr())

	messages := notifier.Messages()
	require.Len(t, messages, 1)
	assert.True(t, strings.HasPrefix(messages[0], "Failed to add listener"))

	assert.ErrorIs(t, second.Serve(context.Background()), ErrNotStarted)
}

func TestListenerCloseClosesOpenConnections(t *testing.T) {
	notifier := &recordingNotifier{}
	l := startListener(t, nil, notifier)

	conn := dial(t, l)
	require.Eventually(t, func() bool { return l.Stats().Accepted == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Close())
	l.Wait()

	_, err := conn.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Equal(t, Stats{Accepted: 1, Aborted: 1}, l.Stats())
	assert.Len(t, notifier.Messages(), 1)
}

func TestListenerStopsOnContextCancel(t *testing.T) {
	l := New(Config{HostName: "127.0.0.1", Port: 0}, nil, nil)
	require.NoError(t, l.Start())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- l.Serve(ctx) }()

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(3 * acceptPollInterval):
		t.Fatal("Serve did not return after cancellation")
	}

	_, err := net.DialTimeout("tcp4", l.Addr().String(), time.Second)
	assert.Error(t, err, "listener socket must be closed")
}

func TestListenerNonEtherpushPeer(t *testing.T) {
	notifier := &recordingNotifier{}
	l := startListener(t, nil, notifier)

	conn := dial(t, l)
	_, err := conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	n, err := conn.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Zero(t, n, "no response byte is sent")

	require.Eventually(t, func() bool { return l.Stats().Aborted == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, notifier.Messages())
}
