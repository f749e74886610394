// Package transfer drives a single incoming etherpush connection from the
// first byte to the end of the frame.
//
// A Session parses the transfer header, asks a Prompter whether the file is
// wanted, answers the peer with one response byte and, on acceptance, stores
// the payload at the chosen path. Failures are reported once to a Notifier
// and end the session; nothing is retried.
//
//	session := transfer.NewSession(conn, prompter, notifier)
//	if err := session.Run(ctx); err != nil {
//	    // session.State() == transfer.StateAborted
//	}
package transfer

import (
	"context"
	"io"
)

// Header describes the file a peer offers.
type Header struct {
	// Filename is the last path element of the name sent by the peer.
	Filename string
	// Length is the size announced by the peer. It is informational only.
	Length int64
}

// Decision is the answer to a transfer request.
type Decision struct {
	accept bool
	path   string
}

// Accept returns a decision storing the file at path.
func Accept(path string) Decision {
	return Decision{accept: true, path: path}
}

// Reject returns a decision refusing the file.
func Reject() Decision {
	return Decision{}
}

// Accepted reports whether the file should be received. An acceptance
// without a destination path counts as a rejection.
func (d Decision) Accepted() bool {
	return d.accept && d.path != ""
}

// Path returns the destination path of an accepted decision.
func (d Decision) Path() string {
	if !d.Accepted() {
		return ""
	}
	return d.path
}

// Prompter decides whether an offered file is received and where it is
// stored. Implementations may block for as long as a human needs to answer.
// An error is treated as a rejection.
type Prompter interface {
	PromptAcceptTransfer(ctx context.Context, filename string, length int64) (Decision, error)
}

// Notifier surfaces a failed session to the user.
type Notifier interface {
	NotifyError(message string)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, filename string, length int64) (Decision, error)

func (f PrompterFunc) PromptAcceptTransfer(ctx context.Context, filename string, length int64) (Decision, error) {
	return f(ctx, filename, length)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string)

func (f NotifierFunc) NotifyError(message string) { f(message) }

// ProgressFunc returns a writer receiving a copy of the payload once it has
// been written to the destination, or nil to skip progress reporting.
type ProgressFunc func(header Header) io.Writer
