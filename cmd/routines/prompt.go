package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// prompter reads one answer per question. It returns io.EOF when input is
// exhausted.
type prompter interface {
	Prompt(question string) (string, error)
	Close() error
}

// newPrompter uses a line editor when stdin is a terminal and a plain line
// reader otherwise.
func (c *cli) newPrompter() prompter {
	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		ln := liner.NewLiner()
		ln.SetCtrlCAborts(true)
		return &linerPrompter{ln: ln}
	}
	return &readerPrompter{in: bufio.NewReader(c.stdin), out: c.stdout}
}

type linerPrompter struct {
	ln *liner.State
}

func (p *linerPrompter) Prompt(question string) (string, error) {
	answer, err := p.ln.Prompt(promptLabel(question))
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if answer != "" {
		p.ln.AppendHistory(answer)
	}
	return answer, nil
}

func (p *linerPrompter) Close() error { return p.ln.Close() }

type readerPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *readerPrompter) Prompt(question string) (string, error) {
	fmt.Fprint(p.out, promptLabel(question))
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(p.out)
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *readerPrompter) Close() error { return nil }

func promptLabel(question string) string {
	if question == "" {
		return "> "
	}
	return question + " "
}
