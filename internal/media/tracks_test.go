package media

import (
	"sync/atomic"
	"testing"

	"github.com/pion/webrtc/v4"
)

type stubTrack struct {
	kind   Kind
	on     atomic.Bool
	closes atomic.Int32
}

func newStubTrack(kind Kind) *stubTrack {
	t := &stubTrack{kind: kind}
	t.on.Store(true)
	return t
}

func (t *stubTrack) Kind() Kind               { return t.kind }
func (t *stubTrack) Enabled() bool            { return t.on.Load() }
func (t *stubTrack) SetEnabled(on bool)       { t.on.Store(on) }
func (t *stubTrack) Local() webrtc.TrackLocal { return nil }
func (t *stubTrack) Close() error             { t.closes.Add(1); return nil }

func newStubSet() *TrackSet {
	return &TrackSet{
		Camera:     newStubTrack(KindVideo),
		Microphone: newStubTrack(KindAudio),
	}
}

func TestToggleFlipsOneTrack(t *testing.T) {
	ts := newStubSet()

	if on := ts.Toggle(KindVideo); on {
		t.Error("camera still on after first toggle")
	}
	if !ts.Enabled(KindAudio) {
		t.Error("toggling camera touched the microphone")
	}
	if on := ts.Toggle(KindVideo); !on {
		t.Error("camera still off after second toggle")
	}
}

func TestToggleMissingTrack(t *testing.T) {
	ts := &TrackSet{Microphone: newStubTrack(KindAudio)}

	if on := ts.Toggle(KindVideo); on {
		t.Error("toggle reported a missing track as enabled")
	}
	if ts.Enabled(KindVideo) {
		t.Error("missing track reported enabled")
	}
}

func TestTrackSetCloseIsIdempotent(t *testing.T) {
	ts := newStubSet()

	if err := ts.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ts.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if got := ts.Camera.(*stubTrack).closes.Load(); got != 1 {
		t.Errorf("camera closed %d times, want 1", got)
	}
	if got := ts.Microphone.(*stubTrack).closes.Load(); got != 1 {
		t.Errorf("microphone closed %d times, want 1", got)
	}
}

type stubSource struct {
	set *TrackSet
}

func (s *stubSource) Tracks() *TrackSet { return s.set }

func TestControllerBeforeAcquisition(t *testing.T) {
	c := NewController(&stubSource{})

	// No media yet: toggles are no-ops, not errors.
	if c.ToggleCamera() || c.ToggleMic() {
		t.Error("toggle without media reported enabled")
	}
	if c.CameraEnabled() || c.MicEnabled() {
		t.Error("enabled without media")
	}
}

func TestControllerTogglesTracks(t *testing.T) {
	src := &stubSource{set: newStubSet()}
	c := NewController(src)

	if on := c.ToggleMic(); on {
		t.Error("mic still on after toggle")
	}
	if c.MicEnabled() {
		t.Error("mic reported enabled after toggle off")
	}
	if !c.CameraEnabled() {
		t.Error("camera flipped by a mic toggle")
	}
}
