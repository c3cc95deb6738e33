// Package capture records microphone audio into a single transportable blob.
//
// Lifecycle: Recorder.Start -> RecordingSession (pump buffers chunks) -> Stop -> Audio.
// A Recorder owns one device and allows one active session at a time.
package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/logger"
)

// MIMEType of finalized recordings.
const MIMEType = "audio/mpeg"

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

var ErrAlreadyRecording = errors.New("capture: recording already in progress")

// Audio is a finalized recording. Ref is a local reference usable for playback
// before the blob is uploaded.
type Audio struct {
	Ref        string
	MIME       string
	Data       []byte
	Duration   time.Duration
	ChunkCount int
}

// Size returns the byte length of the recording.
func (a *Audio) Size() int { return len(a.Data) }

type Recorder struct {
	device Device

	mu     sync.Mutex
	active *RecordingSession
}

func NewRecorder(device Device) *Recorder {
	return &Recorder{device: device}
}

// State reports whether a session is in progress.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return StateRecording
	}
	return StateIdle
}

// Start opens the device and begins buffering chunks in arrival order.
// On device failure the recorder stays Idle and no session is created.
func (r *Recorder) Start(ctx context.Context) (*RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrAlreadyRecording
	}
	if r.device == nil {
		return nil, apperr.DeviceAccess(ErrNoDevice)
	}
	stream, err := r.device.Open(ctx)
	if err != nil {
		logger.Errorf("capture: open device: %v", err)
		return nil, apperr.DeviceAccess(err)
	}
	s := &RecordingSession{
		recorder: r,
		stream:   stream,
		started:  time.Now(),
		stop:     make(chan struct{}),
		ended:    make(chan struct{}),
		pumped:   make(chan struct{}),
	}
	r.active = s
	go s.pump()
	return s, nil
}

// Stop finalizes the given session. A nil session (recorder idle) is a no-op.
func (r *Recorder) Stop(s *RecordingSession) *Audio {
	if s == nil {
		return nil
	}
	return s.Stop()
}

func (r *Recorder) release(s *RecordingSession) {
	r.mu.Lock()
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()
}

// RecordingSession is one in-progress capture. It is never persisted.
type RecordingSession struct {
	recorder *Recorder
	stream   Stream
	started  time.Time

	mu     sync.Mutex
	chunks [][]byte

	stop   chan struct{}
	ended  chan struct{} // closed when the device stream runs out on its own
	pumped chan struct{} // closed when pump has returned

	once  sync.Once
	audio *Audio
}

func (s *RecordingSession) pump() {
	defer close(s.pumped)
	chunks := s.stream.Chunks()
	for {
		select {
		case <-s.stop:
			// chunks that already arrived belong to this recording
			for {
				select {
				case c, ok := <-chunks:
					if !ok {
						return
					}
					s.add(c)
				default:
					return
				}
			}
		case c, ok := <-chunks:
			if !ok {
				close(s.ended)
				return
			}
			s.add(c)
		}
	}
}

func (s *RecordingSession) add(c []byte) {
	if len(c) == 0 {
		return
	}
	s.mu.Lock()
	s.chunks = append(s.chunks, c)
	s.mu.Unlock()
}

// Ended is closed when the device stops producing chunks by itself
// (for example the browser closed the socket). Stop must still be called.
func (s *RecordingSession) Ended() <-chan struct{} {
	return s.ended
}

// Stop finalizes buffered chunks into one Audio exactly once; later calls return the same result.
func (s *RecordingSession) Stop() *Audio {
	s.once.Do(func() {
		close(s.stop)
		if err := s.stream.Close(); err != nil {
			logger.Errorf("capture: close stream: %v", err)
		}
		<-s.pumped

		s.mu.Lock()
		var buf bytes.Buffer
		for _, c := range s.chunks {
			buf.Write(c)
		}
		n := len(s.chunks)
		s.chunks = nil
		s.mu.Unlock()

		s.audio = &Audio{
			Ref:        uuid.New().String(),
			MIME:       MIMEType,
			Data:       buf.Bytes(),
			Duration:   time.Since(s.started),
			ChunkCount: n,
		}
		if s.audio.Data == nil {
			s.audio.Data = []byte{}
		}
		s.recorder.release(s)
		logger.Debugf("capture: finalized ref=%s chunks=%d bytes=%d", s.audio.Ref, n, len(s.audio.Data))
	})
	return s.audio
}
