/*
NAME
  header.go

DESCRIPTION
  Basic header and message header encoding/decoding for the four RTMP
  chunk header types (0: full, 1: same stream, 2: timestamp only,
  3: continuation). See spec.md §4.1.

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

import "encoding/binary"

// chunkHeaderType is one of the four RTMP chunk header formats.
type chunkHeaderType uint8

const (
	hdrFull          chunkHeaderType = 0 // 11-byte message header.
	hdrSameStream    chunkHeaderType = 1 // 7-byte message header.
	hdrTimestampOnly chunkHeaderType = 2 // 3-byte message header.
	hdrContinuation  chunkHeaderType = 3 // no message header.
)

// msgHeaderSize gives the message header size (not including the basic
// header) for each chunk header type, per spec.md §4.1.
var msgHeaderSize = [4]int{11, 7, 3, 0}

// extendedTimestampMarker is the sentinel 3-byte timestamp/delta value that
// indicates a 4-byte extended timestamp follows the message header.
const extendedTimestampMarker = 0xffffff

// basicHeader is the decoded first 1-3 bytes of a chunk.
type basicHeader struct {
	typ  chunkHeaderType
	csid uint32
}

// encodeBasicHeader appends the shortest valid basic header encoding for
// (typ, csid) to dst and returns the result (spec.md §4.1).
func encodeBasicHeader(dst []byte, typ chunkHeaderType, csid uint32) []byte {
	switch {
	case csid >= 2 && csid <= 63:
		return append(dst, byte(typ)<<6|byte(csid))
	case csid >= 64 && csid <= 319:
		return append(dst, byte(typ)<<6, byte(csid-64))
	default:
		ext := csid - 64
		return append(dst, byte(typ)<<6|1, byte(ext), byte(ext>>8))
	}
}

// decodeBasicHeader parses the basic header at the start of buf. It returns
// the header, the number of bytes consumed, and ErrNeedMore if buf is too
// short to contain a complete basic header.
func decodeBasicHeader(buf []byte) (basicHeader, int, error) {
	if len(buf) < 1 {
		return basicHeader{}, 0, ErrNeedMore
	}
	typ := chunkHeaderType(buf[0] >> 6)
	low := buf[0] & 0x3f
	switch low {
	case 0:
		if len(buf) < 2 {
			return basicHeader{}, 0, ErrNeedMore
		}
		return basicHeader{typ: typ, csid: 64 + uint32(buf[1])}, 2, nil
	case 1:
		if len(buf) < 3 {
			return basicHeader{}, 0, ErrNeedMore
		}
		csid := 64 + uint32(buf[1]) + uint32(buf[2])<<8
		return basicHeader{typ: typ, csid: csid}, 3, nil
	default:
		return basicHeader{typ: typ, csid: uint32(low)}, 1, nil
	}
}

// msgHeader holds the fields a type-0/1/2 message header may carry, besides
// the timestamp/delta field (passed to encodeMsgHeader separately since its
// meaning — absolute or delta — depends on the chunk header type). Fields
// not present for a given chunk header type retain the assembly state's
// inherited value (spec.md §4.1 step 3).
type msgHeader struct {
	length   uint32
	typeID   uint8
	streamID uint32 // little-endian on the wire (spec.md §3).
}

// encodeMsgHeader appends the message header (not including any extended
// timestamp) for typ to dst.
func encodeMsgHeader(dst []byte, typ chunkHeaderType, h msgHeader, tsField uint32) []byte {
	switch typ {
	case hdrFull:
		dst = append24(dst, tsField)
		dst = append24(dst, h.length)
		dst = append(dst, h.typeID)
		var sid [4]byte
		binary.LittleEndian.PutUint32(sid[:], h.streamID)
		dst = append(dst, sid[:]...)
	case hdrSameStream:
		dst = append24(dst, tsField)
		dst = append24(dst, h.length)
		dst = append(dst, h.typeID)
	case hdrTimestampOnly:
		dst = append24(dst, tsField)
	case hdrContinuation:
		// No message header fields.
	}
	return dst
}

func append24(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>16), byte(v>>8), byte(v))
}

func decode24(buf []byte) uint32 {
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}
