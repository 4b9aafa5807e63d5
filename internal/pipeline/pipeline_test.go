package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeCapture struct {
	framesLeft int32
	width      uint32
	height     uint32
}

func (f *fakeCapture) WaitReadable(timeoutMS int64) error { return nil }
func (f *fakeCapture) Width() uint32                      { return f.width }
func (f *fakeCapture) Height() uint32                     { return f.height }

func (f *fakeCapture) ReadFrame() (Frame, bool, error) {
	if atomic.AddInt32(&f.framesLeft, -1) < 0 {
		return Frame{}, false, nil
	}
	return Frame{Bytes: []byte{1, 2, 3}, Release: func() error { return nil }}, true, nil
}

type fakeSink struct {
	accepted int
	writes   [][]byte
	active   bool
	needKF   bool
}

func (s *fakeSink) AcceptAll()          { s.accepted++ }
func (s *fakeSink) NumClients() int     { return 0 }
func (s *fakeSink) Active() bool        { return s.active }
func (s *fakeSink) NeedKeyframe() bool  { return s.needKF }
func (s *fakeSink) ClearNeedKeyframe()  { s.needKF = false }
func (s *fakeSink) Write(payload []byte) {
	cp := append([]byte{}, payload...)
	s.writes = append(s.writes, cp)
}

func TestRunStopsAfterFrameCountWithNoActiveSinks(t *testing.T) {
	src := &fakeCapture{framesLeft: 5, width: 640, height: 480}
	jpegSink := &fakeSink{}
	mjpegSink := &fakeSink{}
	h264Sink := &fakeSink{}

	var statuses []Status
	cfg := Config{FPS: 1000, FrameCount: 3, IdleMS: 1}
	loop := New(zerolog.Nop(), cfg, src, nil, nil, nil, jpegSink, mjpegSink, h264Sink, func(s Status) {
		statuses = append(statuses, s)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if jpegSink.accepted == 0 || mjpegSink.accepted == 0 || h264Sink.accepted == 0 {
		t.Fatal("expected AcceptAll to be called on every sink each iteration")
	}
	if len(jpegSink.writes) != 0 || len(h264Sink.writes) != 0 {
		t.Fatal("expected no writes when no sink is active and no snapshot path is configured")
	}
}

func TestRunExitsOnContextCancel(t *testing.T) {
	src := &fakeCapture{framesLeft: 1 << 20, width: 640, height: 480}
	jpegSink := &fakeSink{}
	mjpegSink := &fakeSink{}
	h264Sink := &fakeSink{}

	cfg := Config{FPS: 1000, FrameCount: 0, IdleMS: 1}
	loop := New(zerolog.Nop(), cfg, src, nil, nil, nil, jpegSink, mjpegSink, h264Sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
