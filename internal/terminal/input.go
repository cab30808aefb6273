package terminal

import (
	"bufio"
	"io"
	"strings"
)

// Reader reads user input one line at a time.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps in, typically os.Stdin.
func NewReader(in io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(in)}
}

// ReadLine reads and trims one line. It returns io.EOF when input is
// exhausted; a final line without a trailing newline is still returned.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.r.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}
