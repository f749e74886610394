// Package prompt provides the collaborators a receiver asks about incoming
// files and tells about failures: an interactive terminal prompt and
// unattended accept-all / reject-all policies.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"etherpush/transfer"

	"github.com/sirupsen/logrus"
)

// ErrUnsafeName is returned for received names that cannot be stored inside
// the download directory.
var ErrUnsafeName = errors.New("unsafe file name")

// Policy answers every request the same way without asking anyone.
type Policy struct {
	accept bool
	dir    string
}

// AcceptAll stores every offered file in dir under its received name.
func AcceptAll(dir string) *Policy {
	return &Policy{accept: true, dir: dir}
}

// RejectAll refuses every offered file.
func RejectAll() *Policy {
	return &Policy{}
}

func (p *Policy) PromptAcceptTransfer(_ context.Context, filename string, length int64) (transfer.Decision, error) {
	log := logrus.WithFields(logrus.Fields{
		"function":  "PromptAcceptTransfer",
		"file_name": filename,
		"file_size": length,
	})

	if !p.accept {
		log.Info("Rejecting transfer by policy")
		return transfer.Reject(), nil
	}

	path, err := DestinationPath(p.dir, filename)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Rejecting transfer")
		return transfer.Reject(), nil
	}

	log.WithField("path", path).Info("Accepting transfer by policy")
	return transfer.Accept(path), nil
}

// DestinationPath joins dir and a received file name. Names that still
// address a directory after sanitising are refused.
func DestinationPath(dir, filename string) (string, error) {
	switch filename {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, filename)
	}
	if strings.ContainsAny(filename, "/\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, filename)
	}
	return filepath.Join(dir, filename), nil
}

// FormatSize renders a byte count for humans.
func FormatSize(n int64) string {
	if n < 0 {
		return "unknown size"
	}

	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
