package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"etherpush/protocol"

	"github.com/sirupsen/logrus"
)

// Client pushes files to etherpush receivers. The zero value is ready to
// use.
type Client struct {
	Dialer *net.Dialer
	// Progress, when set, returns a writer receiving a copy of every payload
	// byte sent.
	Progress func(name string, size int64) io.Writer
}

// Result describes the outcome of a push.
type Result struct {
	Accepted bool
	Sent     int64
}

// SendFile pushes the file at path, announcing it under its base name.
func (c *Client) SendFile(ctx context.Context, addr, path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("[SendFile] - error opening %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("[SendFile] - error reading %s: %w", path, err)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("[SendFile] - %s is a directory", path)
	}

	return c.Send(ctx, addr, filepath.Base(path), file, info.Size())
}

// Send announces name and size to the receiver at addr and streams payload
// once the receiver accepted. A rejection is not an error. Cancelling ctx
// aborts the push, including the wait for the receiver's decision.
func (c *Client) Send(ctx context.Context, addr, name string, payload io.Reader, size int64) (Result, error) {
	addr = WithDefaultPort(addr)
	log := logrus.WithFields(logrus.Fields{
		"function":  "Send",
		"address":   addr,
		"file_name": name,
		"file_size": size,
	})

	if err := protocol.ValidateName(name); err != nil {
		return Result{}, fmt.Errorf("[Send] - %w", err)
	}

	conn, err := c.dialer().DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{}, fmt.Errorf("[Send] - error connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := protocol.SendHeader(conn, name, size); err != nil {
		return Result{}, fmt.Errorf("[Send] - error sending header: %w", err)
	}

	log.Info("Waiting for the receiver to decide")
	response := make([]byte, 1)
	if _, err := io.ReadFull(conn, response); err != nil {
		return Result{}, fmt.Errorf("[Send] - error reading response: %w", err)
	}
	accepted, err := protocol.ParseResponse(response[0])
	if err != nil {
		return Result{}, fmt.Errorf("[Send] - %w", err)
	}
	if !accepted {
		log.Info("Transfer rejected by receiver")
		return Result{}, nil
	}

	watch := &dataEndWatch{}
	writers := []io.Writer{conn, watch}
	if c.Progress != nil {
		if w := c.Progress(name, size); w != nil {
			writers = append(writers, w)
		}
	}

	sent, err := io.Copy(io.MultiWriter(writers...), payload)
	if err != nil {
		return Result{Accepted: true, Sent: sent}, fmt.Errorf("[Send] - error sending payload: %w", err)
	}
	if watch.seen {
		log.Warn("Payload contains the data end byte, the receiver will truncate the file")
	}

	if err := protocol.SendTrailer(conn); err != nil {
		return Result{Accepted: true, Sent: sent}, fmt.Errorf("[Send] - error sending trailer: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}

	// the receiver closes once the frame is stored
	_, _ = io.Copy(io.Discard, conn)

	log.WithField("sent", sent).Info("File sent")
	return Result{Accepted: true, Sent: sent}, nil
}

func (c *Client) dialer() *net.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return &net.Dialer{}
}

// WithDefaultPort appends the default etherpush port to an address without
// one.
func WithDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(protocol.DefaultPort))
}

type dataEndWatch struct {
	seen bool
}

func (w *dataEndWatch) Write(p []byte) (int, error) {
	if !w.seen && bytes.IndexByte(p, protocol.DataEnd) >= 0 {
		w.seen = true
	}
	return len(p), nil
}
