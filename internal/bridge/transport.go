package bridge

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// Transport moves newline-delimited JSON messages to and from the server.
// Send and Receive return once ctx is done even if the peer is stuck.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

type lineTransport struct {
	w       io.WriteCloser
	writeMu sync.Mutex

	lines   chan []byte
	done    chan struct{}
	readErr error

	closeOnce sync.Once
}

// NewLineTransport frames messages one per line over r and w. A reader
// goroutine owns r so that Receive can give up when its context ends.
func NewLineTransport(r io.Reader, w io.WriteCloser) Transport {
	t := &lineTransport{
		w:     w,
		lines: make(chan []byte),
		done:  make(chan struct{}),
	}
	go t.readLoop(bufio.NewReader(r))
	return t
}

func (t *lineTransport) readLoop(br *bufio.Reader) {
	defer close(t.lines)
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			select {
			case t.lines <- trimmed:
			case <-t.done:
				return
			}
		}
		if err != nil {
			t.readErr = err
			return
		}
	}
}

// Send writes payload and a newline. A peer that stops reading can block the
// write indefinitely, so the write runs on its own goroutine and Send gives
// up when ctx ends; the stuck write is released by Close. After a timed-out
// Send the framing is unknown and the transport must be closed.
func (t *lineTransport) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, 0, len(payload)+1)
	buf = append(append(buf, payload...), '\n')

	written := make(chan error, 1)
	go func() {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		_, err := t.w.Write(buf)
		written <- err
	}()

	select {
	case err := <-written:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *lineTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			// readErr is written before lines is closed.
			if t.readErr != nil && !errors.Is(t.readErr, io.EOF) {
				return nil, t.readErr
			}
			return nil, io.ErrUnexpectedEOF
		}
		return line, nil
	}
}

// Close closes the write side, which tells the server to exit, and stops
// the reader from delivering further lines.
func (t *lineTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.w.Close()
	})
	return err
}
