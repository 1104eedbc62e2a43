/*
NAME
  chunk.go

DESCRIPTION
  Outbound chunk encoding (message -> chunk stream bytes) and inbound
  chunk decoding (chunk stream bytes -> reassembled messages), per
  spec.md §4.1. Encoding picks the header type appropriate to the
  previous message sent on the same chunk stream id; decoding keeps
  one assembly state per inbound csid so type 1/2/3 chunks can be
  resolved against the last full header seen for that csid.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtmp

// outState is what the Encoder remembers about the last message sent on a
// chunk stream id, used to pick the shortest correct header type for the
// next message on that csid.
type outState struct {
	have      bool
	timestamp uint32
	length    uint32
	typeID    uint8
	streamID  uint32
}

// Encoder turns Messages into RTMP chunk stream bytes, fragmenting payloads
// longer than ChunkSize and choosing header types 0-3 per spec.md §4.1.
type Encoder struct {
	// ChunkSize is the maximum chunk payload size. Defaults to
	// DefaultChunkSize if zero.
	ChunkSize uint32

	out map[uint32]*outState
}

// Encode appends the wire bytes for msg to dst and returns the result.
// The first chunk uses header type 0 (full) unless the csid has seen a
// prior message with matching stream id, in which case the shortest header
// that still distinguishes the new message is chosen: type 1 when the
// type id or length changed, type 2 when only the timestamp changed, type 0
// otherwise falls back to a full header on first use of the csid.
func (e *Encoder) Encode(dst []byte, msg Message) []byte {
	size := e.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	if e.out == nil {
		e.out = make(map[uint32]*outState)
	}
	prev := e.out[msg.CSID]

	typ := hdrFull
	if prev != nil && prev.have && prev.streamID == msg.StreamID {
		switch {
		case prev.typeID != msg.TypeID || prev.length != msg.Length():
			typ = hdrSameStream
		default:
			typ = hdrTimestampOnly
		}
	}

	// tsValue is the full, untruncated value this chunk carries in its
	// timestamp field: absolute for a full header, a delta from the
	// previous message on this csid otherwise (spec.md §4.1 Type 1/2).
	tsValue := msg.Timestamp
	if typ != hdrFull && prev != nil {
		tsValue = msg.Timestamp - prev.timestamp
	}
	extended := tsValue >= extendedTimestampMarker
	tsField := tsValue
	if extended {
		tsField = extendedTimestampMarker
	}

	dst = encodeBasicHeader(dst, typ, msg.CSID)
	dst = encodeMsgHeader(dst, typ, msgHeader{
		length:   msg.Length(),
		typeID:   msg.TypeID,
		streamID: msg.StreamID,
	}, tsField)
	if extended {
		dst = append(dst, byte(tsValue>>24), byte(tsValue>>16), byte(tsValue>>8), byte(tsValue))
	}

	payload := msg.Payload
	for len(payload) > 0 {
		n := uint32(len(payload))
		if n > size {
			n = size
		}
		dst = append(dst, payload[:n]...)
		payload = payload[n:]
		if len(payload) > 0 {
			// Continuation chunk: basic header only, extended timestamp
			// (if any) is repeated per RTMP convention (spec.md §4.1).
			dst = encodeBasicHeader(dst, hdrContinuation, msg.CSID)
			if extended {
				dst = append(dst, byte(tsValue>>24), byte(tsValue>>16), byte(tsValue>>8), byte(tsValue))
			}
		}
	}

	e.out[msg.CSID] = &outState{have: true, timestamp: msg.Timestamp, length: msg.Length(), typeID: msg.TypeID, streamID: msg.StreamID}
	return dst
}

// assembly is the per-csid inbound chunk assembly state (spec.md §3).
type assembly struct {
	timestamp  uint32 // Last absolute timestamp delivered or in progress.
	delta      uint32 // Last type-1/2 timestamp delta, for repeated type-3 chunks.
	length     uint32
	typeID     uint8
	streamID   uint32
	payload    []byte
	fragmented bool
	extendedTS bool // Whether the in-progress message uses an extended timestamp.
}

// Decoder reassembles Messages from a stream of inbound chunk bytes
// (spec.md §4.1). A Decoder is not safe for concurrent use.
type Decoder struct {
	// ChunkSize is the maximum chunk payload size the peer is sending
	// with. Defaults to DefaultChunkSize if zero; updated by the caller
	// when a SetChunkSize message is observed.
	ChunkSize uint32

	state map[uint32]*assembly
}

// chunkBufHint sizes the initial allocation for a message's assembly
// buffer; most command/data/audio/video messages fit in one allocation.
const chunkBufHint = 4 << 10

func newAssemblyBuffer(declaredLength uint32) []byte {
	n := declaredLength
	if n == 0 || n > chunkBufHint {
		n = chunkBufHint
	}
	return make([]byte, 0, n)
}

// Decode attempts to parse one complete chunk from the start of buf. It
// returns the number of bytes consumed and, if a message's payload is now
// complete, the message itself. ErrNeedMore indicates buf does not yet
// contain a full chunk; the caller should read more bytes and retry with
// the same (unconsumed) prefix.
func (d *Decoder) Decode(buf []byte) (consumed int, msg *Message, err error) {
	if len(buf) == 0 {
		return 0, nil, ErrNeedMore
	}
	size := d.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	if d.state == nil {
		d.state = make(map[uint32]*assembly)
	}

	bh, n, err := decodeBasicHeader(buf)
	if err != nil {
		return 0, nil, err
	}
	hsz := msgHeaderSize[bh.typ]
	if len(buf) < n+hsz {
		return 0, nil, ErrNeedMore
	}
	st := d.state[bh.csid]
	if st == nil {
		st = &assembly{}
		d.state[bh.csid] = st
	}

	mh := buf[n : n+hsz]
	switch bh.typ {
	case hdrFull:
		st.length = decode24(mh[3:6])
		st.typeID = mh[6]
		st.streamID = uint32(mh[7]) | uint32(mh[8])<<8 | uint32(mh[9])<<16 | uint32(mh[10])<<24
	case hdrSameStream:
		st.length = decode24(mh[3:6])
		st.typeID = mh[6]
	case hdrTimestampOnly, hdrContinuation:
		// Length, type id and stream id are inherited (spec.md §4.1 step 3).
	}
	off := n + hsz

	// Types 0/1/2 carry a 3-byte timestamp/delta field in mh; type 3 carries
	// none and, if the message has an extended timestamp, just repeats the
	// 4-byte value (spec.md §4.1 "Extended timestamp").
	var extended bool
	var raw3 uint32
	if bh.typ != hdrContinuation {
		raw3 = decode24(mh[0:3])
		extended = raw3 == extendedTimestampMarker
	} else {
		extended = st.extendedTS
	}

	var ts uint32
	switch {
	case bh.typ != hdrContinuation && extended:
		if len(buf) < off+4 {
			return 0, nil, ErrNeedMore
		}
		ts = uint32(buf[off])<<24 | uint32(buf[off+1])<<16 | uint32(buf[off+2])<<8 | uint32(buf[off+3])
		off += 4
	case bh.typ != hdrContinuation:
		ts = raw3
	case extended: // hdrContinuation with an extended timestamp.
		if len(buf) < off+4 {
			return 0, nil, ErrNeedMore
		}
		off += 4
	}

	switch bh.typ {
	case hdrFull:
		st.timestamp = ts
		st.delta = 0
	case hdrSameStream, hdrTimestampOnly:
		st.delta = ts
		if st.payload == nil {
			st.timestamp += ts
		}
	case hdrContinuation:
		if st.payload == nil {
			// First chunk of a message that repeats the previous
			// message's delta/length/type/stream id verbatim.
			st.timestamp += st.delta
		}
	}
	if bh.typ != hdrContinuation {
		st.extendedTS = extended
	}

	if st.payload == nil {
		st.payload = newAssemblyBuffer(st.length)
	}
	remaining := st.length - uint32(len(st.payload))
	want := remaining
	if want > size {
		want = size
	}
	if uint32(len(buf)-off) < want {
		return 0, nil, ErrNeedMore
	}
	st.payload = append(st.payload, buf[off:off+int(want)]...)
	off += int(want)

	st.fragmented = uint32(len(st.payload)) < st.length
	if !st.fragmented {
		typeID := st.typeID
		payload := st.payload
		st.payload = nil
		if !knownMsgType[typeID] {
			// spec.md §4.1/§7: an unknown message type id is logged and
			// dropped, not treated as a fatal decode error; the bytes are
			// still consumed so the stream stays in sync.
			return off, nil, ErrUnknownMsgType
		}
		out := &Message{
			CSID:      bh.csid,
			TypeID:    typeID,
			StreamID:  st.streamID,
			Timestamp: st.timestamp,
			Payload:   payload,
		}
		return off, out, nil
	}
	return off, nil, nil
}

// knownMsgType is the set of message type ids this decoder reassembles
// full payloads for (spec.md §3). Anything else is logged and dropped by
// the caller rather than passed on as a Message.
var knownMsgType = map[uint8]bool{
	TypeSetChunkSize: true,
	TypeWindowAck:    true,
	TypeAudio:        true,
	TypeVideo:        true,
	TypeDataAMF0:     true,
	TypeCommandAMF0:  true,
}
