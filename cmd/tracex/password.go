package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/oicur0t/tracex/internal/reader"
)

const passwordAttempts = 3

var errNoTerminal = errors.New("trace file is password protected and stdin is not a terminal, use --password")

// terminalPassword asks for the password on the controlling terminal
// without echoing it.
type terminalPassword struct {
	in  *os.File
	out io.Writer
}

func (p terminalPassword) ConfirmPassword(ctx context.Context, hash int32) (bool, error) {
	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		return false, errNoTerminal
	}
	for i := 0; i < passwordAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprint(p.out, "Password: ")
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return false, fmt.Errorf("failed to read password: %w", err)
		}
		if reader.HashPassword(string(pw)) == hash {
			return true, nil
		}
		fmt.Fprintln(p.out, "Wrong password.")
	}
	return false, nil
}

// passwordPrompter prefers a configured password over asking.
func (a *app) passwordPrompter() reader.PasswordPrompter {
	if a.cfg.Password != "" {
		return reader.StaticPassword(a.cfg.Password)
	}
	return terminalPassword{in: os.Stdin, out: os.Stderr}
}
