package media

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Kind distinguishes the two local capture tracks.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Track is one local capture track. The enabled flag lives beside the track
// and is independent of the peer connection: flipping it never triggers
// renegotiation.
type Track interface {
	Kind() Kind
	Enabled() bool
	SetEnabled(bool)
	// Local exposes the underlying track for attachment to a peer connection.
	Local() webrtc.TrackLocal
	Close() error
}

// Provider acquires the local camera and microphone. The device-backed
// implementation lives in this package; tests substitute fakes.
type Provider interface {
	GetUserMedia(ctx context.Context) (*TrackSet, error)
}

// TrackSet bundles the camera and microphone tracks for one session. It is
// owned by the peer connection manager; everything else holds non-owning
// references and must not stop tracks directly.
type TrackSet struct {
	Camera     Track
	Microphone Track

	mu       sync.Mutex
	released bool
}

func (ts *TrackSet) track(kind Kind) Track {
	switch kind {
	case KindVideo:
		return ts.Camera
	case KindAudio:
		return ts.Microphone
	}
	return nil
}

// Toggle flips the enabled flag of the given track and returns the new
// state. A missing track reports false.
func (ts *TrackSet) Toggle(kind Kind) bool {
	t := ts.track(kind)
	if t == nil {
		return false
	}
	t.SetEnabled(!t.Enabled())
	return t.Enabled()
}

// Enabled reports the enabled flag of the given track.
func (ts *TrackSet) Enabled(kind Kind) bool {
	t := ts.track(kind)
	if t == nil {
		return false
	}
	return t.Enabled()
}

// Close stops both tracks. Closing twice releases nothing twice.
func (ts *TrackSet) Close() error {
	ts.mu.Lock()
	if ts.released {
		ts.mu.Unlock()
		return nil
	}
	ts.released = true
	ts.mu.Unlock()

	var errs []error
	if ts.Camera != nil {
		errs = append(errs, ts.Camera.Close())
	}
	if ts.Microphone != nil {
		errs = append(errs, ts.Microphone.Close())
	}
	return errors.Join(errs...)
}
