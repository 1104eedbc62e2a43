/*
NAME
  rtmp.go

DESCRIPTION
  Package rtmp implements the RTMP chunk stream: basic/message header
  encoding and decoding, chunk fragmentation and reassembly, and the
  small set of command exchanges (connect/createStream/publish) needed
  to drive a live publish session over a dialed TCP connection.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>
  Alan Noble <alan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package rtmp provides an RTMP chunk-stream codec and a minimal client
// connection for publishing live audio/video to an RTMP server.
package rtmp

import "github.com/pkg/errors"

const pkg = "rtmp:"

// Reserved chunk stream ids (spec.md §3).
const (
	CSIDControl = 2
	CSIDCommand = 3
	CSIDAudio   = 4
	CSIDVideo   = 6
	CSIDData    = 8
)

// Message type ids (spec.md §3).
const (
	TypeSetChunkSize = 0x01
	TypeWindowAck    = 0x05
	TypeAudio        = 0x08
	TypeVideo        = 0x09
	TypeDataAMF0     = 0x12
	TypeCommandAMF0  = 0x14
)

// Errors raised by the codec and connection.
var (
	ErrNeedMore         = errors.New("rtmp: need more bytes")
	ErrInvalidBasicHdr  = errors.New("rtmp: invalid basic header")
	ErrUnknownMsgType   = errors.New("rtmp: unknown message type")
	ErrNotConnected     = errors.New("rtmp: not connected")
	ErrInvalidChunkSize = errors.New("rtmp: invalid chunk size")
)

// DefaultChunkSize is the RTMP default maximum chunk payload size, used
// until a SetChunkSize message negotiates a different value (spec.md §6).
const DefaultChunkSize = 128
