package media

// TrackSource hands out a non-owning reference to the current track set, or
// nil while no media has been acquired.
type TrackSource interface {
	Tracks() *TrackSet
}

// Controller is the thin facade the presentation layer uses for mute and
// camera toggles, so it never touches connection internals. Toggling before
// media acquisition completes is a no-op, not an error.
type Controller struct {
	source TrackSource
}

func NewController(source TrackSource) *Controller {
	return &Controller{source: source}
}

// ToggleCamera flips the camera track and reports the resulting state.
func (c *Controller) ToggleCamera() bool {
	ts := c.source.Tracks()
	if ts == nil {
		return false
	}
	return ts.Toggle(KindVideo)
}

// ToggleMic flips the microphone track and reports the resulting state.
func (c *Controller) ToggleMic() bool {
	ts := c.source.Tracks()
	if ts == nil {
		return false
	}
	return ts.Toggle(KindAudio)
}

// CameraEnabled reports the camera flag; false without media.
func (c *Controller) CameraEnabled() bool {
	ts := c.source.Tracks()
	return ts != nil && ts.Enabled(KindVideo)
}

// MicEnabled reports the microphone flag; false without media.
func (c *Controller) MicEnabled() bool {
	ts := c.source.Tracks()
	return ts != nil && ts.Enabled(KindAudio)
}
