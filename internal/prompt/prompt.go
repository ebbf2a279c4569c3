// Package prompt holds the operator confirmation capability. The runner
// only depends on the Confirmer interface so tests can answer
// deterministically.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Confirmer asks the operator a yes/no question. Implementations may
// block indefinitely; there is no timeout.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// Stdin reads the answer from standard input.
type Stdin struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdin creates a Confirmer on os.Stdin/os.Stdout.
func NewStdin() *Stdin {
	return &Stdin{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewReader creates a Confirmer on arbitrary streams (for testing).
func NewReader(in io.Reader, out io.Writer) *Stdin {
	return &Stdin{in: bufio.NewReader(in), out: out}
}

// Confirm prints the question and accepts only y or Y as affirmative.
// A closed input stream counts as a decline.
func (s *Stdin) Confirm(question string) (bool, error) {
	fmt.Fprintf(s.out, "%s [y/N]: ", question)

	line, err := s.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}

	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y", nil
}

// Auto answers yes to everything; used by the --yes flag.
type Auto struct{}

// Confirm always affirms.
func (Auto) Confirm(string) (bool, error) {
	return true, nil
}
