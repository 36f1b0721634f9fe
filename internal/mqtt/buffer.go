package mqtt

// bufferedMsg is a serialized MQTT message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the most recent messages published while disconnected.
// When full, the oldest message is overwritten and counted as dropped.
// Not safe for concurrent use; RealPublisher guards it with its mutex.
type ringBuffer struct {
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count == len(r.buf) {
		r.dropped++
		return
	}
	r.count++
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.count, r.head, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
