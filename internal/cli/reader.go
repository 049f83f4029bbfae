package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// NonBlockingReader reads terminal input without blocking past context
// cancellation.
type NonBlockingReader struct {
	reader      *bufio.Reader
	readingLock sync.Mutex
}

// NewNonBlockingReader creates a reader wrapping r.
func NewNonBlockingReader(r io.Reader) *NonBlockingReader {
	if r == nil {
		panic("reader cannot be nil")
	}

	return &NonBlockingReader{
		reader: bufio.NewReader(r),
	}
}

// ReadString reads until delim, returning early when ctx is canceled. A
// canceled read leaves the underlying read running; the next call waits for
// it to finish before starting its own.
func (r *NonBlockingReader) ReadString(ctx context.Context, delim byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	default:
	}

	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.readingLock.Lock()
		defer r.readingLock.Unlock()

		value, err := r.reader.ReadString(delim)
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		return res.value, res.err
	}
}

// ReadLine reads a line and trims surrounding whitespace.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	line, err := r.ReadString(ctx, '\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
