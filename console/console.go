// Package console handles the operator's terminal while the machine runs:
// raw-mode hotkeys, interactive single stepping and an optional separate
// terminal for the kernel log.
package console

import (
	"context"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Command is an operator request decoded from a key press.
type Command int

const (
	CmdNone Command = iota
	CmdStep
	CmdContinue
	CmdTimer
	CmdInterrupt
	CmdQuit
)

// Decode maps a key to its command.
func Decode(r rune) Command {
	switch r {
	case ' ', '\r', '\n', 's':
		return CmdStep
	case 'c':
		return CmdContinue
	case 't':
		return CmdTimer
	case 'i':
		return CmdInterrupt
	case 'q', 0x03: // ctrl-c arrives as a byte in raw mode
		return CmdQuit
	}
	return CmdNone
}

// Keyboard reads hotkeys from a terminal put in non-canonical, no-echo mode.
type Keyboard struct {
	in                     *os.File
	originalTerminalConfig unix.Termios
	raw                    bool
	keyBuffer              chan byte
}

func NewKeyboard(in *os.File) *Keyboard {
	return &Keyboard{
		in:        in,
		keyBuffer: make(chan byte, 16),
	}
}

// IsTerminal reports whether the keyboard input is an interactive terminal.
func (kb *Keyboard) IsTerminal() bool {
	return term.IsTerminal(int(kb.in.Fd()))
}

// EnableRawMode turns off line buffering and echo. It is a no-op when the
// input is not a terminal.
func (kb *Keyboard) EnableRawMode() error {
	if !kb.IsTerminal() {
		return nil
	}
	log.Printf("enabling raw mode...")
	if err := termios.Tcgetattr(kb.in.Fd(), &kb.originalTerminalConfig); err != nil {
		return errors.Wrap(err, "tcgetattr")
	}
	newTermios := kb.originalTerminalConfig
	newTermios.Lflag &^= unix.ICANON | unix.ECHO
	if err := termios.Tcsetattr(kb.in.Fd(), termios.TCSANOW, &newTermios); err != nil {
		return errors.Wrap(err, "tcsetattr")
	}
	kb.raw = true
	return nil
}

func (kb *Keyboard) DisableRawMode() {
	if !kb.raw {
		return
	}
	log.Printf("disabling raw mode...")
	termios.Tcsetattr(kb.in.Fd(), termios.TCSANOW, &kb.originalTerminalConfig)
	kb.raw = false
}

// Poll copies key presses into the buffer until ctx is done or input ends.
// Keys are dropped while the buffer is full.
func (kb *Keyboard) Poll(ctx context.Context) {
	go func() {
		buf := make([]byte, 1)
		for ctx.Err() == nil {
			n, err := kb.in.Read(buf)
			if err != nil {
				return
			}
			for _, b := range buf[:n] {
				select {
				case kb.keyBuffer <- b:
				default:
				}
			}
		}
	}()
}

// Command returns the next buffered command without blocking.
func (kb *Keyboard) Command() Command {
	select {
	case b := <-kb.keyBuffer:
		return Decode(rune(b))
	default:
		return CmdNone
	}
}
