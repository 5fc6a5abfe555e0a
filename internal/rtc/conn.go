package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/zeidlos/gridcall/internal/config"
	"github.com/zeidlos/gridcall/internal/netutil"
)

// Conn is the slice of *webrtc.PeerConnection the manager drives. Tests
// substitute an in-memory implementation.
type Conn interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// ConnFactory builds the peer connection for one session.
type ConnFactory func() (Conn, error)

// PionFactory builds pion peer connections configured with the STUN and
// optional TURN servers from cfg. TURN is forced when the config says so or
// when the host network makes direct connectivity hopeless.
func PionFactory(cfg *config.Config) ConnFactory {
	return func() (Conn, error) {
		iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

		turnServers := cfg.GetTURNServers()
		if turnServers != nil {
			username, password := cfg.GetTURNCredentials()
			iceServers = append(iceServers, webrtc.ICEServer{
				URLs:       turnServers,
				Username:   username,
				Credential: password,
			})
		}

		policy := webrtc.ICETransportPolicyAll
		if turnServers != nil && (cfg.ForceRelay || netutil.ShouldForceRelay()) {
			policy = webrtc.ICETransportPolicyRelay
		}

		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		})
		if err != nil {
			return nil, negotiationErr("create peer connection", err)
		}
		return pc, nil
	}
}
