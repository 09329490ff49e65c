// Package prompt provides user interaction utilities for CLI tools.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompter handles user interaction for configuration.
type Prompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// New creates a prompter with the given input/output streams.
func New(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

// String asks for free text. Empty input returns def.
func (p *Prompter) String(prompt, def string) string {
	if def != "" {
		fmt.Fprintf(p.writer, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(p.writer, "%s: ", prompt)
	}

	input, _ := p.readLine()
	if input == "" {
		return def
	}
	return input
}

// Int asks for a number in [lo, hi], asking again until the answer is
// valid. Empty input or end of input returns def.
func (p *Prompter) Int(prompt string, def, lo, hi int) int {
	for {
		fmt.Fprintf(p.writer, "%s [%d-%d, default=%d]: ", prompt, lo, hi, def)

		input, err := p.readLine()
		if input == "" {
			return def
		}

		n, convErr := strconv.Atoi(input)
		if convErr == nil && n >= lo && n <= hi {
			return n
		}
		fmt.Fprintf(p.writer, "  Please enter a whole number between %d and %d.\n", lo, hi)

		if errors.Is(err, io.EOF) {
			return def
		}
	}
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(prompt string, def bool) bool {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}

	for {
		fmt.Fprintf(p.writer, "%s [%s]: ", prompt, hint)

		input, err := p.readLine()
		switch strings.ToLower(input) {
		case "":
			return def
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		fmt.Fprintln(p.writer, "  Please answer y or n.")

		if errors.Is(err, io.EOF) {
			return def
		}
	}
}

// Section prints a section header.
func (p *Prompter) Section(title string) {
	fmt.Fprintf(p.writer, "\n[%s]\n", title)
}

// Println writes a message with newline.
func (p *Prompter) Println(args ...any) {
	fmt.Fprintln(p.writer, args...)
}

func (p *Prompter) readLine() (string, error) {
	input, err := p.reader.ReadString('\n')
	return strings.TrimSpace(input), err
}
