package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlabIsExactlySized(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		wantClass int
	}{
		{name: "empty", n: 0, wantClass: 0},
		{name: "small", n: 100, wantClass: 0},
		{name: "class boundary", n: 4096, wantClass: 1},
		{name: "largest class", n: 1398104, wantClass: 4},
		{name: "oversized", n: 1398105, wantClass: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := getSlab(tt.n)
			defer putSlab(s)
			assert.Len(t, s.Bytes, tt.n)
			assert.Equal(t, tt.wantClass, s.class)
		})
	}
}

func TestBufferIsResetOnReuse(t *testing.T) {
	buf := getBuffer()
	buf.WriteString("stale")
	putBuffer(buf)

	again := getBuffer()
	defer putBuffer(again)
	assert.Zero(t, again.Len())
}
