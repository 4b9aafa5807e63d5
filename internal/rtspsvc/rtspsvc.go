// Package rtspsvc republishes the h264 sink over RTSP: one
// ServerMediaSession at /stream, fed by reading the sink as an ordinary
// unix-socket subscriber, reframing with internal/framer, and
// repacketizing each access unit into RTP with gortsplib's H.264 format.
package rtspsvc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/rs/zerolog"

	"github.com/chainflux/capturesvc/internal/framer"
)

// Path is the single fixed RTSP session path, per the external-interface
// contract: one ServerMediaSession at /stream.
const Path = "/stream"

// Server hosts the RTSP listener and the single H.264 media stream.
type Server struct {
	log zerolog.Logger

	media  *description.Media
	format *format.H264
	stream *gortsplib.ServerStream
	rtpEnc *rtph264Encoder

	svr *gortsplib.Server
}

// NewServer builds a Server listening on port with the given output
// packet buffer cap.
func NewServer(log zerolog.Logger, port, packetBufferBytes int) (*Server, error) {
	h264Format := &format.H264{
		PayloadTyp:        96,
		PacketizationMode: 1,
	}
	media := &description.Media{
		Type:    description.MediaTypeVideo,
		Formats: []format.Format{h264Format},
	}

	s := &Server{
		log:    log,
		media:  media,
		format: h264Format,
	}

	desc := &description.Session{Medias: []*description.Media{media}}
	s.stream = gortsplib.NewServerStream(&gortsplib.Server{}, desc)

	enc, err := newRTPH264Encoder(h264Format, packetBufferBytes)
	if err != nil {
		s.stream.Close()
		return nil, fmt.Errorf("rtp encoder: %w", err)
	}
	s.rtpEnc = enc

	s.svr = &gortsplib.Server{
		Handler:     &serverHandler{s: s},
		RTSPAddress: fmt.Sprintf(":%d", port),
	}
	return s, nil
}

// ListenAndServe starts the RTSP server and blocks until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.svr.Start(); err != nil {
		return fmt.Errorf("rtsp listen: %w", err)
	}
	s.log.Info().Str("path", Path).Msg("rtsp server listening")

	done := make(chan error, 1)
	go func() { done <- s.svr.Wait() }()

	select {
	case <-ctx.Done():
		s.svr.Close()
		s.stream.Close()
		return nil
	case err := <-done:
		return err
	}
}

// ConsumeSink dials sockPath as an ordinary subscriber of the pipeline's
// h264 sink, reframes the byte stream, and republishes each access unit
// as RTP packets on the stream.
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

		if perr := fr.Process(buf[:n], s.publishUnit); perr != nil {
			s.log.Warn().Err(perr).Msg("framer overflow, resetting")
		}
	}
}

func (s *Server) publishUnit(unit []byte) {
	nalus, err := h264.AnnexBUnmarshal(unit)
	if err != nil || len(nalus) == 0 {
		return
	}

	pkts, err := s.rtpEnc.encode(nalus)
	if err != nil {
		s.log.Warn().Err(err).Msg("rtp encode failed")
		return
	}
	for _, pkt := range pkts {
		if err := s.stream.WritePacketRTP(s.media, pkt); err != nil {
			s.log.Warn().Err(err).Msg("write rtp packet failed")
		}
	}
}

type serverHandler struct {
	s *Server
}

func (h *serverHandler) OnConnOpen(*gortsplib.ServerHandlerOnConnOpenCtx)   {}
func (h *serverHandler) OnConnClose(*gortsplib.ServerHandlerOnConnCloseCtx) {}

func (h *serverHandler) OnSessionOpen(ctx *gortsplib.ServerHandlerOnSessionOpenCtx) {
	h.s.log.Info().Msg("rtsp session opened")
}

func (h *serverHandler) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	h.s.log.Info().Msg("rtsp session closed")
}

func (h *serverHandler) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx) (*base.Response, *gortsplib.ServerStream, error) {
	if ctx.Path != Path {
		return &base.Response{StatusCode: base.StatusNotFound}, nil, nil
	}
	return &base.Response{StatusCode: base.StatusOK}, h.s.stream, nil
}

func (h *serverHandler) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx) (*base.Response, *gortsplib.ServerStream, error) {
	return &base.Response{StatusCode: base.StatusOK}, h.s.stream, nil
}

func (h *serverHandler) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	return &base.Response{StatusCode: base.StatusOK}, nil
}
