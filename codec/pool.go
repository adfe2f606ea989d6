package codec

import (
	"bytes"
	"sync"
)

// bufPool reuses the scratch buffer behind EncodeMsgpack, the same shape as
// the teacher's own byte-buffer pools (pools.go) that back its key/value
// encoding hot path, adapted here to a single buffer kind since msgpack
// encoding has no separate key/value/index buffers to keep apart.
var bufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

func getBuffer() *bytes.Buffer {
	return bufPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	buf.Reset()
	bufPool.Put(buf)
}
