package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers line by line. Passwords are read without echo when
// the input is a terminal.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
	// fd is the terminal file descriptor, or -1 when input is not a terminal.
	fd int
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &prompter{in: bufio.NewScanner(in), out: out, fd: fd}
}

// ask prints label and returns the trimmed answer. ok is false at end of
// input.
func (p *prompter) ask(label string) (answer string, ok bool) {
	fmt.Fprint(p.out, label)
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}

// askPassword is ask with echo turned off on terminals.
func (p *prompter) askPassword(label string) (string, bool) {
	if p.fd < 0 {
		return p.ask(label)
	}
	fmt.Fprint(p.out, label)
	password, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(password)), true
}

func (p *prompter) say(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}
