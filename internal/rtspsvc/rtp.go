package rtspsvc

import (
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtph264"
	"github.com/pion/rtp"
)

// rtph264Encoder packetizes whole NAL units into RTP packets sized to a
// configurable output buffer cap.
type rtph264Encoder struct {
	enc *rtph264.Encoder
}

func newRTPH264Encoder(f *format.H264, packetBufferBytes int) (*rtph264Encoder, error) {
	enc := &rtph264.Encoder{
		PayloadType:    f.PayloadTyp,
		PayloadMaxSize: packetBufferBytes,
	}
	if err := enc.Init(); err != nil {
		return nil, err
	}
	return &rtph264Encoder{enc: enc}, nil
}

func (e *rtph264Encoder) encode(nalus [][]byte) ([]*rtp.Packet, error) {
	return e.enc.Encode(nalus)
}
