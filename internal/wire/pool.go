package wire

import "sync"

var pool sync.Pool

func init() {
	pool.New = func() interface{} {
		return &packetObject{}
	}
}

func getPacketObject() *packetObject {
	return pool.Get().(*packetObject)
}

// putPacketObject clears o before returning it to the pool.
// Slices handed out by o stay with their new owner.
func putPacketObject(o *packetObject) {
	*o = packetObject{}
	pool.Put(o)
}
