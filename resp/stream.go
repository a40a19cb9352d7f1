package resp

// StreamDecoder wraps Decode with the growable byte buffer spec.md §4.1
// describes: bytes are appended as they arrive off the wire, and Next is
// called in a loop until it reports ErrNeedMore, at which point the caller
// goes back to the socket for more bytes. Decoding itself never blocks.
type StreamDecoder struct {
	buf []byte
}

// Feed appends newly-read bytes to the internal buffer.
func (d *StreamDecoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next attempts to decode one Value from the buffered bytes. It returns
// ErrNeedMore when the buffer holds an incomplete frame; the already-buffered
// bytes are preserved exactly (Feed again once more arrive). On success the
// consumed bytes are dropped from the front of the buffer.
func (d *StreamDecoder) Next() (Value, error) {
	v, n, err := Decode(d.buf)
	if err != nil {
		return Value{}, err
	}
	d.buf = d.buf[n:]
	d.compact()
	return v, nil
}

// Buffered reports how many bytes are currently queued and undecoded.
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// compact reclaims space at the front of buf once it has a lot of slack,
// mirroring the teacher's bufgrow/grow doubling strategy in redis/util.go so
// a long-lived connection's buffer doesn't retain an ever-growing backing
// array after large replies are consumed.
func (d *StreamDecoder) compact() {
	if cap(d.buf)-len(d.buf) > 4096 && len(d.buf) > 0 {
		nb := make([]byte, len(d.buf), len(d.buf)*2)
		copy(nb, d.buf)
		d.buf = nb
	}
}
