package credentials

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Source yields a password. The auditor resolves it exactly once, at the
// start of a run.
type Source interface {
	Resolve(ctx context.Context) (string, error)

	// Describe names the kind of source for logging. It never reveals
	// the password.
	Describe() string
}

// Literal is a password given verbatim.
type Literal string

var _ Source = Literal("")

func (l Literal) Resolve(context.Context) (string, error) {
	return string(l), nil
}

func (l Literal) Describe() string {
	return "literal value"
}

// Callback obtains the password programmatically.
type Callback struct {
	Name string
	Fn   func(ctx context.Context) (string, error)
}

var _ Source = Callback{}

func (c Callback) Resolve(ctx context.Context) (string, error) {
	pw, err := c.Fn(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "password callback %#q failed", c.Name)
	}

	return pw, nil
}

func (c Callback) Describe() string {
	return fmt.Sprintf("callback %#q", c.Name)
}

// EnvCallback returns a Callback that reads the password from an
// environment variable.
func EnvCallback(envVar string) Callback {
	return Callback{
		Name: "env:" + envVar,
		Fn: func(context.Context) (string, error) {
			pw, ok := os.LookupEnv(envVar)
			if !ok {
				return "", errors.Errorf("environment variable %#q is not set", envVar)
			}

			return pw, nil
		},
	}
}

// Prompt asks the operator for the password interactively. If In is a
// terminal the input is not echoed.
type Prompt struct {
	Message string
	In      io.Reader
	Out     io.Writer
}

var _ Source = Prompt{}

// NewPrompt returns a Prompt on the process’s standard streams.
func NewPrompt(message string) Prompt {
	return Prompt{
		Message: message,
		In:      os.Stdin,
		Out:     os.Stderr,
	}
}

func (p Prompt) Resolve(context.Context) (string, error) {
	if _, err := fmt.Fprint(p.Out, p.Message); err != nil {
		return "", errors.Wrap(err, "failed to write password prompt")
	}

	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", errors.Wrap(err, "failed to read password from terminal")
		}

		return string(pw), nil
	}

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return "", errors.Wrap(err, "failed to read password")
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func (p Prompt) Describe() string {
	return "interactive prompt"
}

// Select picks a Source the way the command line does: a literal wins,
// then an environment variable, and otherwise the operator is prompted.
func Select(literal, envVar, promptMessage string) Source {
	switch {
	case literal != "":
		return Literal(literal)
	case envVar != "":
		return EnvCallback(envVar)
	}

	return NewPrompt(promptMessage)
}
