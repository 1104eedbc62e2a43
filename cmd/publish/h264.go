/*
NAME
  h264.go

DESCRIPTION
  Splits a raw Annex-B H.264 elementary stream (the common file format a
  standalone encoder writes) into NAL units and assembles the
  AVCDecoderConfigurationRecord on_codec_format needs, the way a caller
  sitting in front of stream.Publisher is expected to per spec.md §6.
  Frame classification reuses flv.IsKeyFrame/IsSequenceHeader rather than
  re-deriving NAL type codes, since those are exactly the functions
  container/flv/builder.go retained from the teacher's encoder for this
  job.

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

package main

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ausocean/rtmppub/container/flv"
)

// H.264 NAL unit type codes this reader cares about (Table 7-1).
const (
	nalTypeNonIDR = 1
	nalTypeIDR    = 5
	nalTypeSPS    = 7
	nalTypePPS    = 8
)

// splitAnnexB splits a whole Annex-B byte stream into its NAL units,
// stripping the 3- or 4-byte start codes. Loading the whole stream at
// once keeps this CLI simple; a production encoder feeding stream.Publisher
// directly would instead hand over access units as it produces them.
func splitAnnexB(data []byte) [][]byte {
	var marks []int
	for i := 0; i+3 <= len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			marks = append(marks, i)
		}
	}
	units := make([][]byte, 0, len(marks))
	for i, m := range marks {
		start := m + 3
		end := len(data)
		if i+1 < len(marks) {
			end = marks[i+1]
			for end > start && data[end-1] == 0 {
				end-- // Strip the leading zero byte of a following 4-byte start code.
			}
		}
		units = append(units, data[start:end])
	}
	return units
}

// withStartCode re-attaches a 3-byte start code so flv.IsKeyFrame and
// flv.IsSequenceHeader, which scan for Annex-B delimiters, can classify a
// single already-split NAL unit.
func withStartCode(nalu []byte) []byte {
	return append([]byte{0x00, 0x00, 0x01}, nalu...)
}

// avcC wraps one NAL unit in the 4-byte length-prefixed form
// on_encoded_video expects in place of the Annex-B start code.
func avcC(nalu []byte) []byte {
	out := make([]byte, 4+len(nalu))
	binary.BigEndian.PutUint32(out, uint32(len(nalu)))
	copy(out[4:], nalu)
	return out
}

// buildAVCDecoderConfigurationRecord assembles the fixed-layout record
// (ISO/IEC 14496-15) on_codec_format(AVC) needs from one SPS and one PPS,
// using a 4-byte NALU length size throughout.
func buildAVCDecoderConfigurationRecord(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 {
		return nil, errors.New("cmd/publish: SPS too short to read profile/level")
	}
	rec := make([]byte, 0, 11+len(sps)+len(pps))
	rec = append(rec, 0x01)             // configurationVersion.
	rec = append(rec, sps[1])           // AVCProfileIndication.
	rec = append(rec, sps[2])           // profile_compatibility.
	rec = append(rec, sps[3])           // AVCLevelIndication.
	rec = append(rec, 0xff)             // reserved(6)=111111 | lengthSizeMinusOne=3.
	rec = append(rec, 0xe1)             // reserved(3)=111 | numOfSequenceParameterSets=1.
	rec = append(rec, byte(len(sps)>>8), byte(len(sps)))
	rec = append(rec, sps...)
	rec = append(rec, 0x01) // numOfPictureParameterSets=1.
	rec = append(rec, byte(len(pps)>>8), byte(len(pps)))
	rec = append(rec, pps...)
	return rec, nil
}

// videoFrame is one classified NAL unit ready for stream.Publisher:
// either the decoder configuration record (sent once, via on_codec_format)
// or a coded access unit with its derived key-frame flag.
type videoFrame struct {
	isConfig bool
	record   []byte // Set when isConfig.
	keyFrame bool
	sample   []byte // AVCC-wrapped, set when !isConfig.
}

// decodeAnnexB walks an Annex-B stream's NAL units, accumulating SPS/PPS
// into the decoder configuration record and classifying every coded
// picture's frame type via flv.IsKeyFrame.
func decodeAnnexB(data []byte) ([]videoFrame, error) {
	var (
		frames     []videoFrame
		sps, pps   []byte
		sentConfig bool
	)
	for _, nalu := range splitAnnexB(data) {
		if len(nalu) == 0 {
			continue
		}
		prefixed := withStartCode(nalu)
		nalType := nalu[0] & 0x1f

		if flv.IsSequenceHeader(prefixed) {
			switch nalType {
			case nalTypeSPS:
				sps = nalu
			case nalTypePPS:
				pps = nalu
			}
			if !sentConfig && sps != nil && pps != nil {
				rec, err := buildAVCDecoderConfigurationRecord(sps, pps)
				if err != nil {
					return nil, err
				}
				frames = append(frames, videoFrame{isConfig: true, record: rec})
				sentConfig = true
			}
			continue
		}

		if nalType != nalTypeIDR && nalType != nalTypeNonIDR {
			continue // Access unit delimiters and other non-picture NAL units; nothing to emit.
		}
		frames = append(frames, videoFrame{keyFrame: flv.IsKeyFrame(prefixed), sample: avcC(nalu)})
	}
	return frames, nil
}
