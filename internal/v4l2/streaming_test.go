package v4l2

// #include <linux/videodev2.h>
import "C"

import "testing"

func TestMakeBufferCopiesScalarFields(t *testing.T) {
	var raw C.struct_v4l2_buffer
	raw.index = 2
	raw._type = C.V4L2_BUF_TYPE_VIDEO_CAPTURE
	raw.bytesused = 4096
	raw.flags = C.V4L2_BUF_FLAG_MAPPED
	raw.sequence = 7
	raw.length = 8192

	buf := makeBuffer(raw)
	if buf.Index != 2 {
		t.Errorf("Index = %d, want 2", buf.Index)
	}
	if buf.BytesUsed != 4096 {
		t.Errorf("BytesUsed = %d, want 4096", buf.BytesUsed)
	}
	if buf.Sequence != 7 {
		t.Errorf("Sequence = %d, want 7", buf.Sequence)
	}
	if buf.Length != 8192 {
		t.Errorf("Length = %d, want 8192", buf.Length)
	}
}
