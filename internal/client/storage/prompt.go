package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompt reads answers line by line from an input stream.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt returns a Prompt reading from in and writing labels to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Line prints label and returns the trimmed answer. io.EOF is returned
// when the input ends before any text.
func (p *Prompt) Line(label string) (string, error) {
	if label != "" {
		fmt.Fprint(p.out, label)
	}
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// Required repeats the question until a non-empty answer is given.
func (p *Prompt) Required(label string) (string, error) {
	for {
		s, err := p.Line(label)
		if err != nil {
			return "", err
		}
		if s != "" {
			return s, nil
		}
	}
}
