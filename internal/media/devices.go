package media

import (
	"context"
	"errors"
	"io/fs"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the camera adapter
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the microphone adapter
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// DeviceProvider acquires real camera and microphone tracks through
// pion/mediadevices, encoding video as VP8 and audio as Opus.
type DeviceProvider struct {
	selector *mediadevices.CodecSelector
}

// NewDeviceProvider prepares the codec selection used for capture.
func NewDeviceProvider() (*DeviceProvider, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, NewError("init vp8 encoder", err)
	}
	vpxParams.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, NewError("init opus encoder", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &DeviceProvider{selector: selector}, nil
}

// GetUserMedia opens the default camera and microphone.
func (p *DeviceProvider) GetUserMedia(_ context.Context) (*TrackSet, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(640)
			c.Height = prop.Int(480)
		},
		Audio: func(c *mediadevices.MediaTrackConstraints) {},
		Codec: p.selector,
	})
	if err != nil {
		return nil, NewError("get user media", classifyDeviceError(err))
	}

	set := &TrackSet{}
	if tracks := stream.GetVideoTracks(); len(tracks) > 0 {
		set.Camera = newDeviceTrack(KindVideo, tracks[0])
	}
	if tracks := stream.GetAudioTracks(); len(tracks) > 0 {
		set.Microphone = newDeviceTrack(KindAudio, tracks[0])
	}
	if set.Camera == nil && set.Microphone == nil {
		return nil, NewError("get user media", ErrDeviceUnavailable)
	}
	return set, nil
}

func classifyDeviceError(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return errors.Join(ErrPermissionDenied, err)
	}
	return errors.Join(ErrDeviceUnavailable, err)
}

// deviceTrack wraps a capture track with the session-level enabled flag.
type deviceTrack struct {
	kind    Kind
	track   mediadevices.Track
	enabled atomic.Bool
}

func newDeviceTrack(kind Kind, t mediadevices.Track) *deviceTrack {
	dt := &deviceTrack{kind: kind, track: t}
	dt.enabled.Store(true)
	return dt
}

func (t *deviceTrack) Kind() Kind {
	return t.kind
}

func (t *deviceTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *deviceTrack) SetEnabled(on bool) {
	t.enabled.Store(on)
}

func (t *deviceTrack) Local() webrtc.TrackLocal {
	return t.track
}

func (t *deviceTrack) Close() error {
	return t.track.Close()
}
