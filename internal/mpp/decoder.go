package mpp

/*
#include <rockchip/rk_mpi.h>
#include <rockchip/mpp_buffer.h>
#include <rockchip/mpp_frame.h>
#include <rockchip/mpp_packet.h>
#include <rockchip/mpp_task.h>

static MPP_RET mpp_dec_cfg_set_out_fmt(MppDecCfg cfg, RK_U32 v) { return mpp_dec_cfg_set_u32(cfg, "base:out_fmt", v); }
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/chainflux/capturesvc/internal/perr"
)

// FrameHandle references a decoded frame living in codec-owned memory.
// It can be fed directly into Encoder.EncodeFrameHandle, or read via
// Bytes for a software path. Exactly one Release call pairs with each
// Decode.
type FrameHandle struct {
	frame C.MppFrame
	buf   C.MppBuffer
}

// Bytes copies the frame's raw plane data out into a Go-owned slice.
func (fh FrameHandle) Bytes() []byte {
	if fh.buf == nil {
		return nil
	}
	size := C.mpp_buffer_get_size(fh.buf)
	ptr := C.mpp_buffer_get_ptr(fh.buf)
	return C.GoBytes(ptr, C.int(size))
}

// Release returns the frame's buffer to its pool and tears down the
// MppFrame wrapper.
func (fh FrameHandle) Release() {
	if fh.frame != nil {
		f := fh.frame
		C.mpp_frame_deinit(&f)
	}
	if fh.buf != nil {
		C.mpp_buffer_put(fh.buf)
	}
}

// Decoder is a hardware JPEG decoder session.
type Decoder struct {
	ctx    C.MppCtx
	mpi    *C.MppApi
	pktGrp C.MppBufferGroup
	frmGrp C.MppBufferGroup

	width, height uint32
	format        FrameFormat
}

// NewJPEGDecoder creates a decoder session producing frames in
// outputFormat (typically planar YUV 4:2:0 semi-planar).
func NewJPEGDecoder(width, height uint32, outputFormat FrameFormat) (*Decoder, error) {
	var ctx C.MppCtx
	var mpi *C.MppApi
	if ret := C.mpp_create(&ctx, &mpi); ret != C.MPP_OK {
		return nil, fmt.Errorf("%w: mpp_create: %d", perr.ErrCodecInitFailed, int(ret))
	}
	if ret := C.mpp_init(ctx, C.MPP_CTX_DEC, C.MPP_VIDEO_CodingMJPEG); ret != C.MPP_OK {
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: mpp_init: %d", perr.ErrCodecInitFailed, int(ret))
	}

	var cfg C.MppDecCfg
	C.mpp_dec_cfg_init(&cfg)
	C.mpp_dec_cfg_set_out_fmt(cfg, C.RK_U32(outputFormat))
	ret := mpi.control(ctx, C.MPP_DEC_SET_CFG, unsafe.Pointer(cfg))
	C.mpp_dec_cfg_deinit(cfg)
	if ret != C.MPP_OK {
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: MPP_DEC_SET_CFG: %d", perr.ErrCodecInitFailed, int(ret))
	}

	var pktGrp, frmGrp C.MppBufferGroup
	if ret := C.mpp_buffer_group_get_internal(&pktGrp, C.MPP_BUFFER_TYPE_ION); ret != C.MPP_OK {
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: packet buffer group: %d", perr.ErrCodecInitFailed, int(ret))
	}
	if ret := C.mpp_buffer_group_get_internal(&frmGrp, C.MPP_BUFFER_TYPE_ION); ret != C.MPP_OK {
		C.mpp_buffer_group_put(pktGrp)
		C.mpp_destroy(ctx)
		return nil, fmt.Errorf("%w: frame buffer group: %d", perr.ErrCodecInitFailed, int(ret))
	}

	return &Decoder{
		ctx: ctx, mpi: mpi, pktGrp: pktGrp, frmGrp: frmGrp,
		width: width, height: height, format: outputFormat,
	}, nil
}

// Decode submits one JPEG packet through the two-port task protocol
// (input port poll->dequeue->enqueue, output port poll->dequeue->enqueue)
// and returns the decoded frame. Both polls may block the calling
// goroutine; callers on the single-threaded pipeline should expect this.
func (d *Decoder) Decode(data []byte) (FrameHandle, error) {
	horStride := alignUp(d.width, 16)
	verStride := alignUp(d.height, 16)
	frameSize := horStride * verStride * 2

	var pktBuf C.MppBuffer
	if ret := C.mpp_buffer_get(d.pktGrp, &pktBuf, C.size_t(len(data))); ret != C.MPP_OK {
		return FrameHandle{}, fmt.Errorf("%w: packet buffer: %d", perr.ErrCodecBufferExhausted, int(ret))
	}
	if len(data) > 0 {
		C.memcpy(C.mpp_buffer_get_ptr(pktBuf), unsafe.Pointer(&data[0]), C.size_t(len(data)))
	}

	var packet C.MppPacket
	if ret := C.mpp_packet_init_with_buffer(&packet, pktBuf); ret != C.MPP_OK {
		C.mpp_buffer_put(pktBuf)
		return FrameHandle{}, fmt.Errorf("%w: packet init: %d", perr.ErrCodecSubmitFailed, int(ret))
	}
	C.mpp_packet_set_length(packet, C.size_t(len(data)))

	var frmBuf C.MppBuffer
	if ret := C.mpp_buffer_get(d.frmGrp, &frmBuf, C.size_t(frameSize)); ret != C.MPP_OK {
		C.mpp_packet_deinit(&packet)
		C.mpp_buffer_put(pktBuf)
		return FrameHandle{}, fmt.Errorf("%w: frame buffer: %d", perr.ErrCodecBufferExhausted, int(ret))
	}

	var frame C.MppFrame
	if ret := C.mpp_frame_init(&frame); ret != C.MPP_OK {
		C.mpp_packet_deinit(&packet)
		C.mpp_buffer_put(pktBuf)
		C.mpp_buffer_put(frmBuf)
		return FrameHandle{}, fmt.Errorf("%w: frame init: %d", perr.ErrCodecSubmitFailed, int(ret))
	}
	C.mpp_frame_set_width(frame, C.RK_U32(d.width))
	C.mpp_frame_set_height(frame, C.RK_U32(d.height))
	C.mpp_frame_set_hor_stride(frame, C.RK_U32(horStride))
	C.mpp_frame_set_ver_stride(frame, C.RK_U32(verStride))
	C.mpp_frame_set_fmt(frame, C.MppFrameFormat(d.format))
	C.mpp_frame_set_buffer(frame, frmBuf)

	outFrame, err := d.runTask(packet, frame)

	C.mpp_packet_deinit(&packet)
	C.mpp_buffer_put(pktBuf)
	if err != nil {
		C.mpp_frame_deinit(&frame)
		C.mpp_buffer_put(frmBuf)
		return FrameHandle{}, err
	}

	return FrameHandle{frame: outFrame, buf: frmBuf}, nil
}

func (d *Decoder) runTask(packet C.MppPacket, frame C.MppFrame) (C.MppFrame, error) {
	var task C.MppTask

	if ret := d.mpi.poll(d.ctx, C.MPP_PORT_INPUT, C.MPP_POLL_BLOCK); ret != C.MPP_OK {
		return nil, fmt.Errorf("%w: poll input: %d", perr.ErrCodecSubmitFailed, int(ret))
	}
	if ret := d.mpi.dequeue(d.ctx, C.MPP_PORT_INPUT, &task); ret != C.MPP_OK || task == nil {
		return nil, fmt.Errorf("%w: dequeue input: %d", perr.ErrCodecSubmitFailed, int(ret))
	}

	C.mpp_task_meta_set_packet(task, C.KEY_INPUT_PACKET, packet)
	C.mpp_task_meta_set_frame(task, C.KEY_OUTPUT_FRAME, frame)

	if ret := d.mpi.enqueue(d.ctx, C.MPP_PORT_INPUT, task); ret != C.MPP_OK {
		return nil, fmt.Errorf("%w: enqueue input: %d", perr.ErrCodecSubmitFailed, int(ret))
	}

	if ret := d.mpi.poll(d.ctx, C.MPP_PORT_OUTPUT, C.MPP_POLL_BLOCK); ret != C.MPP_OK {
		return nil, fmt.Errorf("%w: poll output: %d", perr.ErrCodecPacketMissing, int(ret))
	}
	if ret := d.mpi.dequeue(d.ctx, C.MPP_PORT_OUTPUT, &task); ret != C.MPP_OK || task == nil {
		return nil, fmt.Errorf("%w: dequeue output: %d", perr.ErrCodecPacketMissing, int(ret))
	}

	var outFrame C.MppFrame
	C.mpp_task_meta_get_frame(task, C.KEY_OUTPUT_FRAME, &outFrame)

	if ret := d.mpi.enqueue(d.ctx, C.MPP_PORT_OUTPUT, task); ret != C.MPP_OK {
		return outFrame, fmt.Errorf("%w: enqueue output: %d", perr.ErrCodecSubmitFailed, int(ret))
	}

	return outFrame, nil
}

// Close tears down the decoder session.
func (d *Decoder) Close() {
	if d.pktGrp != nil {
		C.mpp_buffer_group_put(d.pktGrp)
		d.pktGrp = nil
	}
	if d.frmGrp != nil {
		C.mpp_buffer_group_put(d.frmGrp)
		d.frmGrp = nil
	}
	if d.ctx != nil {
		d.mpi.reset(d.ctx)
		C.mpp_destroy(d.ctx)
		d.ctx = nil
	}
}
