/*
NAME
  message.go

DESCRIPTION
  The RTMP message model: the common envelope every chunk stream
  message carries, and constructors for the variants this publisher
  emits and consumes. See spec.md §3, §4.2.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtmp

// Message is a logical RTMP message: a command, data, audio, video, or
// control payload, independent of how it was (or will be) chunked.
type Message struct {
	CSID      uint32 // Chunk stream id this message travels on.
	TypeID    uint8
	StreamID  uint32 // RTMP message stream id, assigned by createStream.
	Timestamp uint32 // Milliseconds; always an absolute value here.
	Payload   []byte
}

// Length returns the declared message length: the payload byte count.
func (m *Message) Length() uint32 { return uint32(len(m.Payload)) }

// NewCommand builds a CommandAMF0 message carrying an already AMF0-encoded
// payload. AMF0 encoding itself is out of scope for this package (spec.md
// §1): callers supply the encoded bytes.
func NewCommand(csid uint32, streamID uint32, payload []byte) Message {
	return Message{CSID: csid, TypeID: TypeCommandAMF0, StreamID: streamID, Payload: payload}
}

// NewData builds a DataAMF0 message (e.g. @setDataFrame onMetaData).
func NewData(csid uint32, streamID uint32, payload []byte) Message {
	return Message{CSID: csid, TypeID: TypeDataAMF0, StreamID: streamID, Payload: payload}
}

// NewAudio builds an Audio message from an already-built FLV audio tag body.
func NewAudio(streamID uint32, timestamp uint32, payload []byte) Message {
	return Message{CSID: CSIDAudio, TypeID: TypeAudio, StreamID: streamID, Timestamp: timestamp, Payload: payload}
}

// NewVideo builds a Video message from an already-built FLV video tag body.
func NewVideo(streamID uint32, timestamp uint32, payload []byte) Message {
	return Message{CSID: CSIDVideo, TypeID: TypeVideo, StreamID: streamID, Timestamp: timestamp, Payload: payload}
}

// NewSetChunkSize builds a protocol-control SetChunkSize message.
func NewSetChunkSize(size uint32) Message {
	payload := []byte{byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size)}
	return Message{CSID: CSIDControl, TypeID: TypeSetChunkSize, Payload: payload}
}
