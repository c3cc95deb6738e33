package capture

import (
	"context"
	"errors"
	"sync"
)

var ErrNoDevice = errors.New("capture: no audio input device")

// Device grants exclusive access to an audio input.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream emits binary audio chunks in arrival order. Chunks is closed when the
// source runs out or after Close.
type Stream interface {
	Chunks() <-chan []byte
	Close() error
}

// ChanDevice feeds chunks written by the caller. Used by tools and tests.
type ChanDevice struct {
	mu     sync.Mutex
	denied error
	src    chan []byte
	opened bool
}

// NewChanDevice creates a device with a chunk buffer of the given size.
func NewChanDevice(buffer int) *ChanDevice {
	return &ChanDevice{src: make(chan []byte, buffer)}
}

// Deny makes every following Open fail with err (permission refused).
func (d *ChanDevice) Deny(err error) {
	d.mu.Lock()
	d.denied = err
	d.mu.Unlock()
}

// Feed pushes one chunk. It blocks when the buffer is full.
func (d *ChanDevice) Feed(chunk []byte) {
	d.src <- chunk
}

// Finish signals the end of input.
func (d *ChanDevice) Finish() {
	close(d.src)
}

func (d *ChanDevice) Open(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denied != nil {
		return nil, d.denied
	}
	if d.opened {
		return nil, errors.New("capture: device busy")
	}
	d.opened = true
	return &chanStream{dev: d}, nil
}

type chanStream struct {
	dev  *ChanDevice
	once sync.Once
}

func (s *chanStream) Chunks() <-chan []byte { return s.dev.src }

func (s *chanStream) Close() error {
	s.once.Do(func() {
		s.dev.mu.Lock()
		s.dev.opened = false
		s.dev.mu.Unlock()
	})
	return nil
}
