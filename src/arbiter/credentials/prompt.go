package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt asks for a username and password. The password is read without
// echo when In is a terminal; otherwise it is read as the next line.
type Prompt struct {
	In  *os.File
	Out io.Writer
}

func (p Prompt) Credentials(context.Context) (Credentials, error) {
	in, out := p.In, p.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	r := bufio.NewReader(in)

	fmt.Fprint(out, "Username: ")
	user, err := readLine(r)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading username: %w", err)
	}

	fmt.Fprint(out, "Password: ")
	var pass string
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return Credentials{}, fmt.Errorf("reading password: %w", err)
		}
		pass = string(b)
	} else if pass, err = readLine(r); err != nil {
		return Credentials{}, fmt.Errorf("reading password: %w", err)
	}
	return Credentials{Username: user, Password: pass}, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
