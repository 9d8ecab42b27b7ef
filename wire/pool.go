package wire

import (
	"bytes"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() any {
		return &bytes.Buffer{}
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// maxPooledBuffer keeps one oversized history from pinning memory.
const maxPooledBuffer = 1 << 20

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	bufferPool.Put(buf)
}

// slab is a reusable byte region; Bytes is resliced to the exact length
// requested from the pool.
type slab struct {
	Bytes []byte
	class int
}

type slabClass struct {
	size int
	ch   chan *slab
}

var slabClasses = []slabClass{
	{size: 512, ch: make(chan *slab, 1024)},
	{size: 4096, ch: make(chan *slab, 512)},
	{size: 32768, ch: make(chan *slab, 128)},
	{size: 262144, ch: make(chan *slab, 32)},
	{size: 1398104, ch: make(chan *slab, 8)},
}

// getSlab returns a slab whose Bytes has length exactly n.
func getSlab(n int) *slab {
	for i, class := range slabClasses {
		if n > class.size {
			continue
		}
		var s *slab
		select {
		case s = <-class.ch:
		default:
			s = &slab{Bytes: make([]byte, 0, class.size), class: i}
		}
		s.Bytes = s.Bytes[:n]
		return s
	}
	// too large for any class; not recycled
	return &slab{Bytes: make([]byte, n), class: -1}
}

func putSlab(s *slab) {
	if s == nil || s.class < 0 {
		return
	}
	select {
	case slabClasses[s.class].ch <- s:
	default:
		// class full, drop
	}
}
