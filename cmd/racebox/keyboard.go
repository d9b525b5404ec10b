package main

import (
	"os"

	"golang.org/x/term"
)

// Keyboard reads single keystrokes from a terminal in raw mode. When
// stdin is not a terminal it is a no-op and Keys() never delivers.
type Keyboard struct {
	fd       int
	oldState *term.State
	keys     chan byte
}

// OpenKeyboard switches stdin into raw mode and starts a reader
// goroutine. The caller must call Close to restore the terminal.
func OpenKeyboard() (*Keyboard, error) {
	k := &Keyboard{
		fd:   int(os.Stdin.Fd()),
		keys: make(chan byte, 8),
	}

	if !term.IsTerminal(k.fd) {
		return k, nil
	}

	oldState, err := term.MakeRaw(k.fd)
	if err != nil {
		return nil, err
	}
	k.oldState = oldState

	// The read blocks until a key arrives; the goroutine dies with the
	// process on exit.
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 1 {
				select {
				case k.keys <- buf[0]:
				default:
				}
			}
		}
	}()

	return k, nil
}

// Active reports whether raw mode is in effect.
func (k *Keyboard) Active() bool {
	return k.oldState != nil
}

// Keys returns the keystroke stream.
func (k *Keyboard) Keys() <-chan byte {
	return k.keys
}

// Close restores the terminal state.
func (k *Keyboard) Close() {
	if k.oldState != nil {
		_ = term.Restore(k.fd, k.oldState)
		k.oldState = nil
	}
}
