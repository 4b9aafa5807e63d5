package mpp

import "testing"

func TestAlignUp(t *testing.T) {
	cases := []struct{ value, align, want uint32 }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{1920, 16, 1920},
		{1080, 16, 1088},
	}
	for _, c := range cases {
		if got := alignUp(c.value, c.align); got != c.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", c.value, c.align, got, c.want)
		}
	}
}
