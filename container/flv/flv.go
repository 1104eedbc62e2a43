/*
NAME
  flv.go

DESCRIPTION
  FLV audio and video tag bodies and their RTMP message payload encoding.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved. 

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/


// See https://wwwimages2.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10.pdf
// for format specification.

// Package flv provides FLV encoding and related functions.
package flv

import "encoding/binary"

const (
	maxVideoTagSize = 10000
	maxAudioTagSize = 10000
)

const (
	KeyFrameType     = 1
	InterFrameType   = 2
	H264             = 7
	AVCNALU          = 1
	SequenceHeader   = 0
	DataHeaderLength = 5
	AACAudioFormat   = 10
	PCMAudioFormat   = 0
)

// Extended video tag packet types, for codecs (HEVC) that don't fit the
// legacy AVC video tag layout. See the enhanced-RTMP extension to the FLV
// spec: the tag's first byte has bit 7 set to signal this layout.
const (
	PacketTypeSequenceStart = 0
	PacketTypeCodedFrames   = 1
	PacketTypeSequenceEnd   = 2
	PacketTypeCodedFramesX  = 3 // CompositionTime omitted; implicitly 0.
	extVideoTagHeaderFlag   = 0x80
	extVideoFrameTypeShift  = 4
	fourCCLength            = 4
)

// HEVCFourCC identifies the HEVC codec in an extended video tag header.
var HEVCFourCC = [fourCCLength]byte{'h', 'v', 'c', '1'}

const version = 0x01

// FLV is big-endian.
var order = binary.BigEndian

// orderPutUint24 is a binary.BigEndian method look-alike for
// writing 24 bit words to a byte slice.
func orderPutUint24(b []byte, v uint32) {
	_ = b[2] // early bounds check to guarantee safety of writes below
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// VideoTag is an AVC video tag body: the same encoding an FLV file tag
// carries as its data, and what an RTMP Video message's payload consists
// of directly (spec.md §4.3) — RTMP has no outer FLV file-tag framing
// (TagType/DataSize/Timestamp/PrevTagSize); those belong only to the .flv
// file container, which this publisher never writes.
type VideoTag struct {
	FrameType       uint8
	Codec           uint8
	PacketType      uint8
	CompositionTime uint32
	Data            []byte
}

// Payload returns the tag body bytes, forming a complete RTMP Video
// message payload.
func (t *VideoTag) Payload() []byte {
	b := make([]byte, DataHeaderLength+len(t.Data))
	b[0] = t.FrameType<<4 | t.Codec
	b[1] = t.PacketType
	orderPutUint24(b[2:5], t.CompositionTime)
	copy(b[5:], t.Data)
	return b
}

// AudioTag is an AAC audio tag body, forming a complete RTMP Audio message
// payload directly (spec.md §4.3); see VideoTag for why there is no outer
// FLV file-tag framing.
type AudioTag struct {
	SoundFormat uint8
	SoundRate   uint8
	SoundSize   bool
	SoundType   bool
	PacketType  uint8
	Data        []byte
}

// Payload returns the tag body bytes, forming a complete RTMP Audio
// message payload.
func (t *AudioTag) Payload() []byte {
	b := make([]byte, 2+len(t.Data))
	b[0] = t.SoundFormat<<4 | t.SoundRate<<2 | btb(t.SoundSize)<<1 | btb(t.SoundType)
	b[1] = t.PacketType
	copy(b[2:], t.Data)
	return b
}

// ExVideoTag is an FLV video tag body in the enhanced-RTMP extended
// layout, used for codecs (HEVC) that the legacy AVC tag's fixed Codec
// nibble cannot name. The first byte sets bit 7 to distinguish this
// layout from a legacy VideoTag's. Like VideoTag, this is the complete
// RTMP Video message payload with no outer FLV file-tag framing.
type ExVideoTag struct {
	FrameType       uint8
	PacketType      uint8
	FourCC          [fourCCLength]byte
	CompositionTime uint32 // Only written for PacketTypeCodedFrames.
	Data            []byte
}

// Payload returns the tag body bytes, forming a complete RTMP Video
// message payload.
func (t *ExVideoTag) Payload() []byte {
	hasComposition := t.PacketType == PacketTypeCodedFrames
	size := 1 + fourCCLength + len(t.Data)
	if hasComposition {
		size += 3
	}
	b := make([]byte, size)

	b[0] = extVideoTagHeaderFlag | t.FrameType<<extVideoFrameTypeShift | t.PacketType
	copy(b[1:], t.FourCC[:])
	off := 1 + fourCCLength
	if hasComposition {
		orderPutUint24(b[off:off+3], t.CompositionTime)
		off += 3
	}
	copy(b[off:], t.Data)

	return b
}

func btb(b bool) byte {
	if b {
		return 1
	}
	return 0
}
