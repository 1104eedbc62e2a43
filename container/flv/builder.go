/*
NAME
  builder.go

DESCRIPTION
  AudioBuilder and VideoBuilder assemble AAC, AVC, and HEVC frames into FLV tag bytes ready
  for an RTMP Audio or Video message payload, using timestamps already
  computed by a media/rebase.Rebaser rather than the wall clock. See
  spec.md §4.3.

AUTHORS
  Dan Kortschak <dan@ausocean.org>
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package flv

// VideoCodec names the video codecs this publisher can tag (spec.md §4.3).
type VideoCodec uint8

const (
	CodecAVC VideoCodec = iota
	CodecHEVC
)

const (
	aacPacketTypeConfig = 0x00
	aacPacketTypeRaw    = 0x01
)

const sampleRate44Khz = 3

// AudioBuilder produces AAC FLV audio tag payloads. The first call after
// construction (or after SequenceHeader's caller-side equivalent) must
// carry an AudioSpecificConfig; AudioBuilder does not infer this itself —
// callers distinguish via on_codec_format (spec.md §6).
type AudioBuilder struct{}

// SequenceHeader builds the AAC AudioSpecificConfig tag body, emitted
// immediately by on_codec_format (spec.md §6, §8 S3).
func (AudioBuilder) SequenceHeader(timestamp uint32, config []byte) []byte {
	return audioTag(timestamp, aacPacketTypeConfig, config)
}

// Frame builds an AAC raw-frame tag body.
func (AudioBuilder) Frame(timestamp uint32, sample []byte) []byte {
	return audioTag(timestamp, aacPacketTypeRaw, sample)
}

// audioTag builds an AAC audio tag payload. timestamp is unused: it only
// ever affected the FLV file-tag header this publisher's RTMP messages
// don't carry (the message's own timestamp goes on the RTMP chunk header
// instead, via rtmp.NewAudio); it stays in the signature so SequenceHeader
// and Frame keep a uniform shape with VideoBuilder's.
func audioTag(timestamp uint32, packetType uint8, data []byte) []byte {
	tag := AudioTag{
		SoundFormat: AACAudioFormat,
		SoundRate:   sampleRate44Khz,
		SoundSize:   true,
		SoundType:   true,
		PacketType:  packetType,
		Data:        data,
	}
	return tag.Payload()
}

// VideoBuilder produces AVC or HEVC FLV video tag payloads, given frame
// type and composition time already resolved by the caller (normally via
// media/rebase.Rebaser).
type VideoBuilder struct {
	Codec VideoCodec
}

// SequenceHeader builds the codec's decoder configuration record tag,
// emitted immediately by on_codec_format (spec.md §6).
func (b VideoBuilder) SequenceHeader(timestamp uint32, record []byte) []byte {
	switch b.Codec {
	case CodecHEVC:
		return hevcTag(timestamp, KeyFrameType, PacketTypeSequenceStart, 0, record)
	default:
		return avcTag(timestamp, KeyFrameType, SequenceHeader, 0, record)
	}
}

// Frame builds a coded-frame video tag body. keyFrame selects the FLV
// FrameType; compositionMS is the signed composition-time offset computed
// by the Rebaser (0 when decode and presentation timestamps coincide).
func (b VideoBuilder) Frame(timestamp uint32, keyFrame bool, compositionMS int32, sample []byte) []byte {
	frameType := uint8(InterFrameType)
	if keyFrame {
		frameType = KeyFrameType
	}
	switch b.Codec {
	case CodecHEVC:
		return hevcTag(timestamp, frameType, PacketTypeCodedFrames, compositionMS, sample)
	default:
		return avcTag(timestamp, frameType, AVCNALU, compositionMS, sample)
	}
}

// avcTag builds an AVC video tag payload. timestamp is unused; see audioTag.
func avcTag(timestamp uint32, frameType, packetType uint8, compositionMS int32, data []byte) []byte {
	tag := VideoTag{
		FrameType:       frameType,
		Codec:           H264,
		PacketType:      packetType,
		CompositionTime: uint32(uint32(compositionMS) & 0xffffff),
		Data:            data,
	}
	return tag.Payload()
}

// hevcTag builds an extended (enhanced-RTMP) HEVC video tag payload.
// timestamp is unused; see audioTag.
func hevcTag(timestamp uint32, frameType, packetType uint8, compositionMS int32, data []byte) []byte {
	tag := ExVideoTag{
		FrameType:       frameType,
		PacketType:      packetType,
		FourCC:          HEVCFourCC,
		CompositionTime: uint32(uint32(compositionMS) & 0xffffff),
		Data:            data,
	}
	return tag.Payload()
}

// IsKeyFrame reports whether frame (an Annex-B H.264 access unit, with its
// start codes) contains an IDR NAL unit. Retained from the wall-clock
// encoder that AudioBuilder and VideoBuilder replace (spec.md §4.3 frame_type).
func IsKeyFrame(frame []byte) bool { return isKeyFrame(frame) }

// IsSequenceHeader reports whether frame is an H.264 parameter-set NAL
// unit rather than a coded picture.
func IsSequenceHeader(frame []byte) bool { return isSequenceHeader(frame) }
