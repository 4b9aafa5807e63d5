package mpp

/*
#include <rockchip/rk_mpi.h>
#include <rockchip/mpp_buffer.h>
#include <rockchip/mpp_frame.h>
#include <rockchip/mpp_packet.h>
#include <rockchip/mpp_meta.h>

static MPP_RET mpp_enc_cfg_set_width(MppEncCfg cfg, RK_S32 v)  { return mpp_enc_cfg_set_s32(cfg, "prep:width", v); }
static MPP_RET mpp_enc_cfg_set_height(MppEncCfg cfg, RK_S32 v) { return mpp_enc_cfg_set_s32(cfg, "prep:height", v); }
static MPP_RET mpp_enc_cfg_set_hstride(MppEncCfg cfg, RK_S32 v){ return mpp_enc_cfg_set_s32(cfg, "prep:hor_stride", v); }
static MPP_RET mpp_enc_cfg_set_vstride(MppEncCfg cfg, RK_S32 v){ return mpp_enc_cfg_set_s32(cfg, "prep:ver_stride", v); }
static MPP_RET mpp_enc_cfg_set_fmt(MppEncCfg cfg, RK_S32 v)    { return mpp_enc_cfg_set_s32(cfg, "prep:format", v); }
static MPP_RET mpp_enc_cfg_set_rc_mode(MppEncCfg cfg, RK_S32 v){ return mpp_enc_cfg_set_s32(cfg, "rc:mode", v); }
static MPP_RET mpp_enc_cfg_set_quant(MppEncCfg cfg, RK_S32 v)  { return mpp_enc_cfg_set_s32(cfg, "jpeg:quant", v); }
static MPP_RET mpp_enc_cfg_set_bps_target(MppEncCfg cfg, RK_S32 v) { return mpp_enc_cfg_set_s32(cfg, "rc:bps_target", v); }
static MPP_RET mpp_enc_cfg_set_bps_max(MppEncCfg cfg, RK_S32 v)    { return mpp_enc_cfg_set_s32(cfg, "rc:bps_max", v); }
static MPP_RET mpp_enc_cfg_set_bps_min(MppEncCfg cfg, RK_S32 v)    { return mpp_enc_cfg_set_s32(cfg, "rc:bps_min", v); }
static MPP_RET mpp_enc_cfg_set_fps_in(MppEncCfg cfg, RK_S32 v)     { return mpp_enc_cfg_set_s32(cfg, "rc:fps_in_num", v); }
static MPP_RET mpp_enc_cfg_set_fps_out(MppEncCfg cfg, RK_S32 v)    { return mpp_enc_cfg_set_s32(cfg, "rc:fps_out_num", v); }
static MPP_RET mpp_enc_cfg_set_gop(MppEncCfg cfg, RK_S32 v)        { return mpp_enc_cfg_set_s32(cfg, "rc:gop", v); }
static MPP_RET mpp_enc_cfg_set_profile(MppEncCfg cfg, RK_S32 v)    { return mpp_enc_cfg_set_s32(cfg, "h264:profile", v); }
static MPP_RET mpp_enc_cfg_set_level(MppEncCfg cfg, RK_S32 v)      { return mpp_enc_cfg_set_s32(cfg, "h264:level", v); }
static MPP_RET mpp_enc_cfg_set_cabac(MppEncCfg cfg, RK_S32 v)      { return mpp_enc_cfg_set_s32(cfg, "h264:cabac_en", v); }
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/chainflux/capturesvc/internal/perr"
)

const (
	rcModeFixQP uint32 = C.MPP_ENC_RC_MODE_FIXQP
	rcModeCBR   uint32 = C.MPP_ENC_RC_MODE_CBR
)

// H264Params configures a hardware H.264 encoder session. GOPLength
// defaults to 2*FPS when zero, matching the rate-control window the
// capture pipeline expects for a newly joined subscriber to resync
// within one GOP.
type H264Params struct {
	BitrateKbps uint32
	FPS         uint32
	GOPLength   uint32
	Profile     int32 // 100 = High
	Level       int32 // 41 = 4.1
	CABAC       bool
}

// Packet is one encoded compressed unit. Bytes is a Go-owned copy taken
// at acquisition time; Release only needs to drop the MPP-side handle.
type Packet struct {
	handle C.MppPacket
	data   []byte
}

// Bytes returns the packet payload.
func (p *Packet) Bytes() []byte { return p.data }

// Release returns the packet's underlying MPP handle. The caller must
// call this before requesting the next packet from the same session.
func (p *Packet) Release() {
	if p.handle != nil {
		C.mpp_packet_deinit(&p.handle)
		p.handle = nil
	}
}

// Encoder is a hardware JPEG or H.264 encoder session.
type Encoder struct {
	ctx    C.MppCtx
	mpi    *C.MppApi
	bufGrp C.MppBufferGroup
	cfg    C.MppEncCfg

	width, height uint32
	format        FrameFormat
}

func newEncoderSession(coding uint32) (C.MppCtx, *C.MppApi, error) {
	var ctx C.MppCtx
	var mpi *C.MppApi
	if ret := C.mpp_create(&ctx, &mpi); ret != C.MPP_OK {
		return nil, nil, fmt.Errorf("%w: mpp_create: %d", perr.ErrCodecInitFailed, int(ret))
	}
	if ret := C.mpp_init(ctx, C.MPP_CTX_ENC, C.MppCodingType(coding)); ret != C.MPP_OK {
		C.mpp_destroy(ctx)
		return nil, nil, fmt.Errorf("%w: mpp_init: %d", perr.ErrCodecInitFailed, int(ret))
	}
	return ctx, mpi, nil
}

// NewJPEGEncoder creates and configures a fixed-quantizer MJPEG encoder
// session. quality is in [0, 100].
func NewJPEGEncoder(width, height uint32, format FrameFormat, quality uint32) (*Encoder, error) {
	ctx, mpi, err := newEncoderSession(uint32(C.MPP_VIDEO_CodingMJPEG))
	if err != nil {
		return nil, err
	}

	var cfg C.MppEncCfg
	if ret := C.mpp_enc_cfg_init(&cfg); ret != C.MPP_OK {
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: mpp_enc_cfg_init: %d", perr.ErrCodecInitFailed, int(ret))
	}

	C.mpp_enc_cfg_set_width(cfg, C.RK_S32(width))
	C.mpp_enc_cfg_set_height(cfg, C.RK_S32(height))
	C.mpp_enc_cfg_set_hstride(cfg, C.RK_S32(width))
	C.mpp_enc_cfg_set_vstride(cfg, C.RK_S32(height))
	C.mpp_enc_cfg_set_fmt(cfg, C.RK_S32(format))
	C.mpp_enc_cfg_set_rc_mode(cfg, C.RK_S32(rcModeFixQP))
	C.mpp_enc_cfg_set_quant(cfg, C.RK_S32(quality))

	if ret := mpi.control(ctx, C.MPP_ENC_SET_CFG, unsafe.Pointer(cfg)); ret != C.MPP_OK {
		C.mpp_enc_cfg_deinit(cfg)
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: MPP_ENC_SET_CFG: %d", perr.ErrCodecInitFailed, int(ret))
	}

	var bufGrp C.MppBufferGroup
	if ret := C.mpp_buffer_group_get_internal(&bufGrp, C.MPP_BUFFER_TYPE_DRM); ret != C.MPP_OK {
		C.mpp_enc_cfg_deinit(cfg)
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: buffer group: %d", perr.ErrCodecInitFailed, int(ret))
	}

	return &Encoder{ctx: ctx, mpi: mpi, bufGrp: bufGrp, cfg: cfg, width: width, height: height, format: format}, nil
}

// NewH264Encoder creates and configures a CBR H.264 encoder session that
// emits SPS/PPS with every IDR frame, so a newly attached subscriber can
// always start decoding from the next keyframe it receives.
func NewH264Encoder(width, height uint32, format FrameFormat, params H264Params) (*Encoder, error) {
	ctx, mpi, err := newEncoderSession(uint32(C.MPP_VIDEO_CodingAVC))
	if err != nil {
		return nil, err
	}

	gop := params.GOPLength
	if gop == 0 {
		gop = params.FPS * 2
	}

	var cfg C.MppEncCfg
	if ret := C.mpp_enc_cfg_init(&cfg); ret != C.MPP_OK {
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: mpp_enc_cfg_init: %d", perr.ErrCodecInitFailed, int(ret))
	}

	C.mpp_enc_cfg_set_width(cfg, C.RK_S32(width))
	C.mpp_enc_cfg_set_height(cfg, C.RK_S32(height))
	C.mpp_enc_cfg_set_hstride(cfg, C.RK_S32(width))
	C.mpp_enc_cfg_set_vstride(cfg, C.RK_S32(height))
	C.mpp_enc_cfg_set_fmt(cfg, C.RK_S32(format))
	C.mpp_enc_cfg_set_rc_mode(cfg, C.RK_S32(rcModeCBR))
	C.mpp_enc_cfg_set_bps_target(cfg, C.RK_S32(params.BitrateKbps*1000))
	C.mpp_enc_cfg_set_bps_max(cfg, C.RK_S32(params.BitrateKbps*1500))
	C.mpp_enc_cfg_set_bps_min(cfg, C.RK_S32(params.BitrateKbps*500))
	C.mpp_enc_cfg_set_fps_in(cfg, C.RK_S32(params.FPS))
	C.mpp_enc_cfg_set_fps_out(cfg, C.RK_S32(params.FPS))
	C.mpp_enc_cfg_set_gop(cfg, C.RK_S32(gop))
	C.mpp_enc_cfg_set_profile(cfg, C.RK_S32(params.Profile))
	C.mpp_enc_cfg_set_level(cfg, C.RK_S32(params.Level))
	if params.CABAC {
		C.mpp_enc_cfg_set_cabac(cfg, 1)
	} else {
		C.mpp_enc_cfg_set_cabac(cfg, 0)
	}

	if ret := mpi.control(ctx, C.MPP_ENC_SET_CFG, unsafe.Pointer(cfg)); ret != C.MPP_OK {
		C.mpp_enc_cfg_deinit(cfg)
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: MPP_ENC_SET_CFG: %d", perr.ErrCodecInitFailed, int(ret))
	}

	headerMode := C.MppEncHeaderMode(C.MPP_ENC_HEADER_MODE_EACH_IDR)
	if ret := mpi.control(ctx, C.MPP_ENC_SET_HEADER_MODE, unsafe.Pointer(&headerMode)); ret != C.MPP_OK {
		// non-fatal: encoder still runs, just without a guaranteed SPS/PPS per IDR
	}

	var bufGrp C.MppBufferGroup
	if ret := C.mpp_buffer_group_get_internal(&bufGrp, C.MPP_BUFFER_TYPE_DRM); ret != C.MPP_OK {
		C.mpp_enc_cfg_deinit(cfg)
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: buffer group: %d", perr.ErrCodecInitFailed, int(ret))
	}

	return &Encoder{ctx: ctx, mpi: mpi, bufGrp: bufGrp, cfg: cfg, width: width, height: height, format: format}, nil
}

// Encode copies min(len(data), width*height*3) bytes into a freshly
// acquired internal buffer, submits the frame, and synchronously polls
// for the resulting packet. forceIDR requests an instantaneous decoder
// refresh point — used when a new subscriber has joined the H.264 sink.
func (e *Encoder) Encode(data []byte, forceIDR bool) (*Packet, error) {
	frameSize := e.width * e.height * 3

	var frameBuf C.MppBuffer
	if ret := C.mpp_buffer_get(e.bufGrp, &frameBuf, C.size_t(frameSize)); ret != C.MPP_OK {
		return nil, fmt.Errorf("%w: mpp_buffer_get: %d", perr.ErrCodecBufferExhausted, int(ret))
	}

	ptr := C.mpp_buffer_get_ptr(frameBuf)
	n := len(data)
	if uint32(n) > frameSize {
		n = int(frameSize)
	}
	if n > 0 {
		C.memcpy(ptr, unsafe.Pointer(&data[0]), C.size_t(n))
	}

	var frame C.MppFrame
	if ret := C.mpp_frame_init(&frame); ret != C.MPP_OK {
		C.mpp_buffer_put(frameBuf)
		return nil, fmt.Errorf("%w: mpp_frame_init: %d", perr.ErrCodecSubmitFailed, int(ret))
	}
	C.mpp_frame_set_width(frame, C.RK_U32(e.width))
	C.mpp_frame_set_height(frame, C.RK_U32(e.height))
	C.mpp_frame_set_hor_stride(frame, C.RK_U32(e.width))
	C.mpp_frame_set_ver_stride(frame, C.RK_U32(e.height))
	C.mpp_frame_set_fmt(frame, C.MppFrameFormat(e.format))
	C.mpp_frame_set_buffer(frame, frameBuf)
	C.mpp_frame_set_eos(frame, 0)

	pkt, err := e.encodeFrame(frame, forceIDR)

	C.mpp_frame_deinit(&frame)
	C.mpp_buffer_put(frameBuf)

	return pkt, err
}

// EncodeFrameHandle submits a frame that already lives in codec-owned
// memory (typically decoder output re-fed into an encoder), avoiding the
// extra copy Encode performs.
func (e *Encoder) EncodeFrameHandle(fh FrameHandle, forceIDR bool) (*Packet, error) {
	if fh.frame == nil {
		return nil, fmt.Errorf("%w: nil frame handle", perr.ErrCodecSubmitFailed)
	}
	return e.encodeFrame(fh.frame, forceIDR)
}

func (e *Encoder) encodeFrame(frame C.MppFrame, forceIDR bool) (*Packet, error) {
	if forceIDR {
		if meta := C.mpp_frame_get_meta(frame); meta != nil {
			C.mpp_meta_set_s32(meta, C.KEY_INPUT_IDR_REQ, 1)
		}
	}

	if ret := e.mpi.encode_put_frame(e.ctx, frame); ret != C.MPP_OK {
		return nil, fmt.Errorf("%w: encode_put_frame: %d", perr.ErrCodecSubmitFailed, int(ret))
	}

	var packet C.MppPacket
	if ret := e.mpi.encode_get_packet(e.ctx, &packet); ret != C.MPP_OK || packet == nil {
		return nil, fmt.Errorf("%w: encode_get_packet: %d", perr.ErrCodecPacketMissing, int(ret))
	}

	size := C.mpp_packet_get_length(packet)
	ptr := C.mpp_packet_get_pos(packet)
	return &Packet{handle: packet, data: C.GoBytes(ptr, C.int(size))}, nil
}

// Close tears down the encoder session. Safe to call once.
func (e *Encoder) Close() {
	if e.cfg != nil {
		C.mpp_enc_cfg_deinit(e.cfg)
		e.cfg = nil
	}
	if e.bufGrp != nil {
		C.mpp_buffer_group_put(e.bufGrp)
		e.bufGrp = nil
	}
	if e.ctx != nil {
		e.mpi.reset(e.ctx)
		C.mpp_destroy(e.ctx)
		e.ctx = nil
	}
}
