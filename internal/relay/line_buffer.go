package relay

// lineBuffer accumulates the bytes of one inbound line. Once more than
// limit bytes have been appended the line is marked overflowed and further
// input is discarded until the next Drain.
type lineBuffer struct {
	data       []byte
	limit      int
	overflowed bool
}

func newLineBuffer(limit int) *lineBuffer {
	if limit <= 0 {
		limit = maxMessageSize
	}
	return &lineBuffer{
		data:  make([]byte, 0, 256),
		limit: limit,
	}
}

func (b *lineBuffer) Append(c byte) {
	if b.overflowed {
		return
	}
	if len(b.data) >= b.limit {
		b.overflowed = true
		b.data = b.data[:0]
		return
	}
	b.data = append(b.data, c)
}

func (b *lineBuffer) Reset() {
	b.data = b.data[:0]
	b.overflowed = false
}

// Drain returns a copy of the buffered line and empties the buffer. ok is
// false when the line overflowed.
func (b *lineBuffer) Drain() (line []byte, ok bool) {
	if !b.overflowed {
		line, ok = append([]byte(nil), b.data...), true
	}
	b.Reset()
	return line, ok
}
