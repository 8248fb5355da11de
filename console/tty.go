package console

import (
	"io"

	tty "github.com/mattn/go-tty"
	"github.com/pkg/errors"
)

// Stepper prompts for one command per simulated cycle.
type Stepper struct {
	io *tty.TTY
}

func OpenStepper() (*Stepper, error) {
	ttyObj, err := tty.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open tty")
	}
	return &Stepper{io: ttyObj}, nil
}

// Next blocks until the operator presses a key bound to a command.
func (s *Stepper) Next() (Command, error) {
	for {
		r, err := s.io.ReadRune()
		if err != nil {
			return CmdQuit, errors.Wrap(err, "read key")
		}
		if cmd := Decode(r); cmd != CmdNone {
			return cmd, nil
		}
	}
}

func (s *Stepper) Close() error {
	return s.io.Close()
}

type ttyWriter struct {
	io *tty.TTY
}

func (w *ttyWriter) Write(p []byte) (int, error) {
	return w.io.Output().Write(p)
}

func (w *ttyWriter) Close() error {
	return w.io.Close()
}

// OpenLogDevice opens another terminal, e.g. /dev/pts/3, so the kernel log
// does not interleave with the operator's console.
func OpenLogDevice(path string) (io.WriteCloser, error) {
	ttyObj, err := tty.OpenDevice(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &ttyWriter{io: ttyObj}, nil
}
