/*
NAME
  metadata.go

DESCRIPTION
  Construction of the `@setDataFrame onMetaData` AMF0 data message sent
  on the Publish -> Publishing transition (spec.md §4.5 "Metadata
  object"). AMF0 encoding itself is an external oracle (package amf);
  this file only assembles the byte strings it produces, using the same
  fixed-buffer-and-cursor idiom as protocol/rtmp/command.go.

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

package stream

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ausocean/rtmppub/container/flv"
	"github.com/ausocean/rtmppub/protocol/rtmp/amf"
)

const (
	cmdSetDataFrame = "@setDataFrame"
	cmdOnMetaData   = "onMetaData"

	fieldWidth           = "width"
	fieldHeight          = "height"
	fieldFramerate       = "framerate"
	fieldVideoCodecID    = "videocodecid"
	fieldVideoDatarate   = "videodatarate"
	fieldAudioCodecID    = "audiocodecid"
	fieldAudioDatarate   = "audiodatarate"
	fieldAudioSampleRate = "audiosamplerate"

	// videoCodecIDAVC is the legacy FLV video codec id for AVC (spec.md §4.5).
	videoCodecIDAVC = 7

	// audioCodecIDAAC is the FLV sound format id for AAC (spec.md §4.5).
	audioCodecIDAAC = 10

	metaBufSize = 512
)

// Metadata is the set of values the onMetaData object carries (spec.md
// §4.5 "Metadata object").
type Metadata struct {
	Width           float64
	Height          float64
	Framerate       float64
	VideoCodec      flv.VideoCodec
	VideoDatarate   float64 // kbps.
	AudioDatarate   float64 // kbps.
	AudioSampleRate float64
}

// videoCodecID returns the videocodecid value for m.VideoCodec: 7 for AVC,
// or the FourCC interpreted as a big-endian u32 for HEVC (spec.md §4.5).
func (m Metadata) videoCodecID() float64 {
	if m.VideoCodec == flv.CodecHEVC {
		return float64(binary.BigEndian.Uint32(flv.HEVCFourCC[:]))
	}
	return videoCodecIDAVC
}

// encodeOnMetaData builds the DataAMF0 payload for "@setDataFrame
// onMetaData {...}": two AMF0 strings followed by an ECMA array of the
// metadata fields.
func encodeOnMetaData(m Metadata) ([]byte, error) {
	buf := make([]byte, metaBufSize)
	rest, err := amf.EncodeString(buf, cmdSetDataFrame)
	if err != nil {
		return nil, errors.Wrap(err, "rtmppub: could not encode @setDataFrame name")
	}
	rest, err = amf.EncodeString(rest, cmdOnMetaData)
	if err != nil {
		return nil, errors.Wrap(err, "rtmppub: could not encode onMetaData name")
	}

	obj := amf.Object{Properties: []amf.Property{
		{Name: fieldWidth, Number: m.Width},
		{Name: fieldHeight, Number: m.Height},
		{Name: fieldFramerate, Number: m.Framerate},
		{Name: fieldVideoCodecID, Number: m.videoCodecID()},
		{Name: fieldVideoDatarate, Number: m.VideoDatarate},
		{Name: fieldAudioCodecID, Number: audioCodecIDAAC},
		{Name: fieldAudioDatarate, Number: m.AudioDatarate},
		{Name: fieldAudioSampleRate, Number: m.AudioSampleRate},
	}}
	rest, err = amf.EncodeEcmaArray(&obj, rest)
	if err != nil {
		return nil, errors.Wrap(err, "rtmppub: could not encode onMetaData array")
	}

	return buf[:len(buf)-len(rest)], nil
}
