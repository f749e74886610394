package transfer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"

	"etherpush/protocol"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// Session handles one accepted connection. A session runs once; its
// accessors are meant to be read after Run returned.
type Session struct {
	id       uuid.UUID
	conn     net.Conn
	reader   *bufio.Reader
	prompter Prompter
	notifier Notifier
	fs       afero.Fs
	progress ProgressFunc

	state    State
	header   Header
	decision Decision
	file     afero.File
	written  int64
}

// Option configures a Session.
type Option func(*Session)

// WithFs sets the filesystem destination files are created on.
func WithFs(fs afero.Fs) Option {
	return func(s *Session) { s.fs = fs }
}

// WithProgress sets a progress writer factory for accepted transfers.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) { s.progress = fn }
}

// WithID overrides the generated session identifier.
func WithID(id uuid.UUID) Option {
	return func(s *Session) { s.id = id }
}

// NewSession creates a session owning conn. A nil prompter rejects every
// transfer, a nil notifier drops notifications.
func NewSession(conn net.Conn, prompter Prompter, notifier Notifier, opts ...Option) *Session {
	s := &Session{
		id:       uuid.New(),
		conn:     conn,
		reader:   bufio.NewReader(conn),
		prompter: prompter,
		notifier: notifier,
		fs:       afero.NewOsFs(),
		state:    StateStart,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.prompter == nil {
		s.prompter = PrompterFunc(func(context.Context, string, int64) (Decision, error) {
			return Reject(), nil
		})
	}
	if s.notifier == nil {
		s.notifier = NotifierFunc(func(string) {})
	}

	return s
}

// Run drives the connection through the protocol and closes it. It returns
// nil when the file was stored or the transfer was rejected, and an *Error
// otherwise. The only blocking points are reads and writes on the
// connection and the Prompter; none of them time out.
func (s *Session) Run(ctx context.Context) error {
	s.logger("Run").Debug("Session started")
	defer s.close()

	if err := s.run(ctx); err != nil {
		s.logger("Run").WithField("error", err.Error()).Info("Session aborted")
		s.state = StateAborted
		return err
	}

	if s.state == StateDone {
		s.logger("Run").WithFields(logrus.Fields{
			"file_name": s.header.Filename,
			"path":      s.decision.Path(),
			"written":   s.written,
		}).Info("File received")
	} else {
		s.logger("Run").WithField("file_name", s.header.Filename).Info("Transfer rejected")
	}

	return nil
}

func (s *Session) run(ctx context.Context) error {
	marker, err := protocol.ReadByte(s.reader)
	if err != nil {
		return s.fail(ErrReadFailure, err, "Failed to read first byte")
	}
	if marker != protocol.Start {
		// nothing was promised to the peer, close without notifying
		return &Error{State: s.state, Kind: ErrProtocol, Err: fmt.Errorf("unexpected marker 0x%02x", marker)}
	}

	s.state = StateReadFilename
	name, err := s.readField(protocol.FieldEnd)
	if err != nil {
		return s.fail(ErrReadFailure, err, "Failed to read filename")
	}
	s.header.Filename = protocol.Basename(string(name))

	s.state = StateReadLength
	digits, err := s.readField(protocol.LengthEnd)
	if err != nil {
		return s.fail(ErrReadFailure, err, "Failed to read length")
	}
	s.header.Length = protocol.ParseLength(digits)

	s.state = StateAwaitDecision
	s.decision = s.decide(ctx)

	s.state = StateSendResponse
	if err := protocol.WriteResponse(s.conn, s.decision.Accepted()); err != nil {
		return s.fail(ErrWriteFailure, err, "Failed to write response")
	}
	if !s.decision.Accepted() {
		s.state = StateAborted
		return nil
	}

	s.state = StateOpenDestination
	file, err := s.fs.OpenFile(s.decision.Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return s.fail(ErrFileOpenFailure, err, "Failed to open file")
	}
	s.file = file

	s.state = StateReadPayload
	payload, err := protocol.ReadField(s.reader, protocol.DataEnd)
	if err != nil {
		return s.fail(ErrReadFailure, err, "Failed to read file")
	}

	n, err := s.file.Write(payload)
	s.written = int64(n)
	if err != nil {
		return s.fail(ErrWriteFailure, err, "Failed to write file")
	}
	s.reportProgress(payload)

	// consumes the DataEnd byte ReadField left buffered; the End byte and
	// anything after it are never read
	s.state = StateReadTerminator
	if _, err := protocol.ReadByte(s.reader); err != nil {
		return s.fail(ErrReadFailure, err, "Failed to read finish byte")
	}

	s.state = StateDone
	return nil
}

// readField reads a header field and consumes its terminator.
func (s *Session) readField(terminator byte) ([]byte, error) {
	field, err := protocol.ReadField(s.reader, terminator)
	if err != nil {
		return nil, err
	}
	if _, err := protocol.ReadByte(s.reader); err != nil {
		return nil, err
	}
	return field, nil
}

func (s *Session) decide(ctx context.Context) Decision {
	log := s.logger("decide").WithFields(logrus.Fields{
		"file_name": s.header.Filename,
		"file_size": s.header.Length,
	})
	log.Info("Incoming transfer request")

	decision, err := s.prompter.PromptAcceptTransfer(ctx, s.header.Filename, s.header.Length)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Prompt failed, rejecting transfer")
		return Reject()
	}

	log.WithField("accepted", decision.Accepted()).Debug("Transfer decided")
	return decision
}

func (s *Session) reportProgress(payload []byte) {
	if s.progress == nil {
		return
	}
	if w := s.progress(s.header); w != nil {
		// progress output never fails the transfer
		_, _ = w.Write(payload)
	}
}

func (s *Session) fail(kind, err error, message string) error {
	s.notifier.NotifyError(fmt.Sprintf("%s: %v", message, err))
	return &Error{State: s.state, Kind: kind, Err: err}
}

func (s *Session) close() {
	err := s.conn.Close()
	if s.file != nil {
		err = multierr.Append(err, s.file.Close())
	}
	if err != nil {
		s.logger("close").WithField("error", err.Error()).Debug("Failed to release session resources")
	}
}

func (s *Session) logger(function string) *logrus.Entry {
	fields := logrus.Fields{
		"function":   function,
		"session_id": s.id.String(),
		"state":      s.state.String(),
	}
	if addr := s.conn.RemoteAddr(); addr != nil {
		fields["remote_addr"] = addr.String()
	}
	return logrus.WithFields(fields)
}

// ID returns the identifier used in the session's log entries.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the state the session is in, StateDone or StateAborted once
// Run returned.
func (s *Session) State() State { return s.state }

// Header returns the parsed header. Fields not read yet are zero.
func (s *Session) Header() Header { return s.header }

// Decision returns the prompter's answer, a rejection if none was asked for.
func (s *Session) Decision() Decision { return s.decision }

// Written returns the number of payload bytes stored.
func (s *Session) Written() int64 { return s.written }
