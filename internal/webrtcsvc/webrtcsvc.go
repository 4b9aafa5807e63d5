// Package webrtcsvc republishes the h264 sink over WebRTC: a single
// TrackLocalStaticSample fed whole access units, and a newline-delimited
// JSON signaling socket implementing the request/offer/answer/
// remote_candidate control surface.
package webrtcsvc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/chainflux/capturesvc/internal/framer"
)

// Config holds webrtcsvc's own tunables.
type Config struct {
	ControlSockPath string
	MaxClients      int
}

type clientSession struct {
	id             string
	pc             *webrtc.PeerConnection
	answerReceived bool
	pending        []string
	timer          *time.Timer
}

// Server hosts the signaling socket and the shared outgoing video track.
type Server struct {
	log   zerolog.Logger
	cfg   Config
	api   *webrtc.API
	track *webrtc.TrackLocalStaticSample

	mu       sync.Mutex
	sessions map[string]*clientSession
}

// NewServer builds a Server with an H.264 media engine and one shared
// output track.
func NewServer(log zerolog.Logger, cfg Config) (*Server, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register h264 codec: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}, "video", "capturesvc",
	)
	if err != nil {
		return nil, fmt.Errorf("new track: %w", err)
	}

	return &Server{
		log:      log,
		cfg:      cfg,
		api:      webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		track:    track,
		sessions: make(map[string]*clientSession),
	}, nil
}

// PublishUnit feeds one H.264 access unit to the shared track; pion fans
// it out as RTP to every subscribed peer connection.
func (s *Server) PublishUnit(unit []byte) {
	if err := s.track.WriteSample(media.Sample{Data: unit, Duration: 0}); err != nil {
		s.log.Warn().Err(err).Msg("write webrtc sample failed")
	}
}

// ConsumeSink dials sockPath as an ordinary subscriber of the pipeline's
// h264 sink, reframes the byte stream, and calls PublishUnit per unit.
func (s *Server) ConsumeSink(ctx context.Context, sockPath string) error {
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return fmt.Errorf("dial h264 sink: %w", err)
	}
	defer conn.Close()

	fr := framer.New()
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("read h264 sink: %w", err)
		}
		if perr := fr.Process(buf[:n], s.PublishUnit); perr != nil {
			s.log.Warn().Err(perr).Msg("framer overflow, resetting")
		}
	}
}

// ListenAndServe accepts signaling connections until ctx is canceled. Each
// connection is read-one-line, handled, answered, and closed.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("unix", s.cfg.ControlSockPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ControlSockPath, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	if !scanner.Scan() {
		return
	}
	line := scanner.Bytes()

	resp := s.handleRequest(line)
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func (s *Server) handleRequest(line []byte) map[string]interface{} {
	switch gjson.GetBytes(line, "type").String() {
	case "request":
		return s.handleOfferRequest(line)
	case "offer":
		return s.handleIncomingOffer(line)
	case "answer":
		return s.handleAnswer(line)
	case "remote_candidate":
		return s.handleRemoteCandidate(line)
	default:
		return errResp("unknown type")
	}
}

func errResp(msg string) map[string]interface{} {
	return map[string]interface{}{"error": msg}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) newSession(timeoutS int, keepAlive bool) *clientSession {
	cs := &clientSession{id: uuid.NewString()}
	timeout := sessionTimeout(timeoutS, keepAlive)
	cs.timer = time.AfterFunc(timeout, func() { s.closeSession(cs.id) })

	s.mu.Lock()
	s.sessions[cs.id] = cs
	s.mu.Unlock()
	return cs
}

func (s *Server) closeSession(id string) {
	s.mu.Lock()
	cs, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if ok {
		cs.timer.Stop()
		_ = cs.pc.Close()
	}
}

func (s *Server) newPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := s.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}
	if _, err := pc.AddTrack(s.track); err != nil {
		pc.Close()
		return nil, err
	}
	return pc, nil
}

// handleOfferRequest implements type "request": the server creates the
// offer and hands back {type:"offer", id, sdp}.
func (s *Server) handleOfferRequest(line []byte) map[string]interface{} {
	if s.cfg.MaxClients > 0 && s.clientCount() >= s.cfg.MaxClients {
		return errResp("max clients reached")
	}

	pc, err := s.newPeerConnection()
	if err != nil {
		return errResp("failed to create offer")
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return errResp("failed to create offer")
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return errResp("failed to create offer")
	}

	timeoutS := int(gjson.GetBytes(line, "timeout_s").Int())
	keepAlive := gjson.GetBytes(line, "keepAlive").Bool()
	cs := s.newSession(timeoutS, keepAlive)
	cs.pc = pc

	return map[string]interface{}{"type": "offer", "id": cs.id, "sdp": offer.SDP}
}

// handleIncomingOffer implements type "offer": the peer sent its own
// offer and expects an answer back.
func (s *Server) handleIncomingOffer(line []byte) map[string]interface{} {
	sdp := gjson.GetBytes(line, "sdp").String()
	if sdp == "" {
		return errResp("missing id or sdp")
	}
	if s.cfg.MaxClients > 0 && s.clientCount() >= s.cfg.MaxClients {
		return errResp("max clients reached")
	}

	pc, err := s.newPeerConnection()
	if err != nil {
		return errResp("failed to create answer")
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		pc.Close()
		return errResp("failed to create answer")
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return errResp("failed to create answer")
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return errResp("failed to create answer")
	}

	timeoutS := int(gjson.GetBytes(line, "timeout_s").Int())
	keepAlive := gjson.GetBytes(line, "keepAlive").Bool()
	cs := s.newSession(timeoutS, keepAlive)
	cs.pc = pc
	cs.answerReceived = true

	return map[string]interface{}{"type": "answer", "id": cs.id, "sdp": answer.SDP}
}

func (s *Server) handleAnswer(line []byte) map[string]interface{} {
	id := gjson.GetBytes(line, "id").String()
	sdp := gjson.GetBytes(line, "sdp").String()
	if id == "" || sdp == "" {
		return errResp("missing id or sdp")
	}

	s.mu.Lock()
	cs, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return errResp("client not found")
	}

	if err := cs.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return errResp("failed to create answer")
	}

	s.mu.Lock()
	cs.answerReceived = true
	pending := cs.pending
	cs.pending = nil
	s.mu.Unlock()

	for _, cand := range pending {
		_ = cs.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: cand})
	}
	return map[string]interface{}{"type": "ok"}
}

func (s *Server) handleRemoteCandidate(line []byte) map[string]interface{} {
	id := gjson.GetBytes(line, "id").String()
	if id == "" {
		return errResp("missing id")
	}

	s.mu.Lock()
	cs, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return errResp("client not found")
	}

	var candidates []string
	if arr := gjson.GetBytes(line, "candidates"); arr.IsArray() {
		for _, elem := range arr.Array() {
			if elem.IsObject() {
				candidates = append(candidates, elem.Get("candidate").String())
			} else {
				candidates = append(candidates, elem.String())
			}
		}
	} else if one := gjson.GetBytes(line, "candidate"); one.Exists() {
		candidates = append(candidates, one.String())
	}

	s.mu.Lock()
	answered := cs.answerReceived
	if !answered {
		cs.pending = append(cs.pending, candidates...)
	}
	s.mu.Unlock()

	if answered {
		for _, cand := range candidates {
			_ = cs.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: cand})
		}
	}
	return map[string]interface{}{"type": "ok"}
}
