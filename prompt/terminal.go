package prompt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"etherpush/transfer"

	"github.com/pterm/pterm"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Terminal asks the user on the terminal whether to accept a file and where
// to save it. Requests from concurrent sessions are asked one after another.
type Terminal struct {
	mu  sync.Mutex
	dir string
}

// NewTerminal returns a prompter suggesting dir as download directory.
func NewTerminal(dir string) *Terminal {
	return &Terminal{dir: dir}
}

func (t *Terminal) PromptAcceptTransfer(ctx context.Context, filename string, length int64) (transfer.Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return transfer.Reject(), err
	}

	question := fmt.Sprintf("Incoming file %q (%s). Accept?", filename, FormatSize(length))
	accepted, err := pterm.DefaultInteractiveConfirm.
		WithDefaultText(question).
		WithDefaultValue(false).
		Show()
	if err != nil {
		return transfer.Reject(), fmt.Errorf("confirm transfer: %w", err)
	}
	if !accepted {
		return transfer.Reject(), nil
	}

	suggested, err := DestinationPath(t.dir, filename)
	if err != nil {
		suggested = t.dir
	}

	path, err := pterm.DefaultInteractiveTextInput.
		WithDefaultText("Save as").
		WithDefaultValue(suggested).
		Show()
	if err != nil {
		return transfer.Reject(), fmt.Errorf("read destination: %w", err)
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return transfer.Reject(), nil
	}
	return transfer.Accept(path), nil
}

// Notifier prints session failures on the terminal.
type Notifier struct {
	printer *pterm.PrefixPrinter
}

// NewNotifier returns a notifier writing to w, stdout when w is nil.
func NewNotifier(w io.Writer) *Notifier {
	printer := pterm.Error
	if w != nil {
		return &Notifier{printer: printer.WithWriter(w)}
	}
	return &Notifier{printer: &printer}
}

func (n *Notifier) NotifyError(message string) {
	n.printer.Println(message)
}

// LogNotifier reports failures through the log only, for unattended
// receivers.
type LogNotifier struct{}

func (LogNotifier) NotifyError(message string) {
	logrus.WithField("function", "NotifyError").Error(message)
}

// ReceiveProgress shows a progress bar while an accepted payload is stored.
func ReceiveProgress(header transfer.Header) io.Writer {
	return progressbar.DefaultBytes(barSize(header.Length), "receiving "+header.Filename)
}

// SendProgress shows a progress bar while a payload is pushed.
func SendProgress(name string, size int64) io.Writer {
	return progressbar.DefaultBytes(barSize(size), "sending "+name)
}

// a spinner is shown when the size is not known
func barSize(length int64) int64 {
	if length <= 0 {
		return -1
	}
	return length
}
