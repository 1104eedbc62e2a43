/*
NAME
  command.go

DESCRIPTION
  The connect/createStream command exchange needed to obtain a stream
  id before the stream state machine can publish, plus the background
  status-message pump that turns onStatus notifications into Event
  Dispatcher events (spec.md §1, §4.5, §4.6). AMF0 encoding itself is
  an external oracle (package amf); this file only sequences the byte
  strings amf produces the way the connect/createStream/publish
  exchange requires.

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

import (
	"github.com/pkg/errors"

	"github.com/ausocean/rtmppub/event"
	"github.com/ausocean/rtmppub/protocol/rtmp/amf"
)

// AMF0 command and status field names (spec.md §4.5, §6).
const (
	cmdConnect      = "connect"
	cmdCreateStream = "createStream"
	cmdPublish      = "publish"
	cmdFCUnpublish  = "FCUnpublish"
	cmdDeleteStream = "deleteStream"
	cmdCloseStream  = "closeStream"
	cmdResult       = "_result"
	cmdOnStatus     = "onStatus"

	fieldApp   = "app"
	fieldType  = "type"
	fieldTcURL = "tcUrl"
	fieldCode  = "code"

	typeNonprivate = "nonprivate"
	modeLive       = "live"

	fieldWidth  = "width"
	fieldHeight = "height"

	statusPublishStart    = "NetStream.Publish.Start"
	statusDimensionChange = "NetStream.Video.DimensionChange"
)

// VideoDimension is the payload event.VideoDimensionChange carries: the
// server-reported output dimensions (spec.md §6 "Status events consumed").
type VideoDimension struct {
	Width, Height float64
}

const cmdBufSize = 4096

// Connect sends the NetConnection connect command for app over tcURL and
// blocks for the server's _result reply, then dispatches ConnectSuccess on
// d so the stream state machine can make its Initialized -> Open transition
// (spec.md §4.5). It must be called before Serve, since both read from the
// same socket.
func (c *Conn) Connect(app, tcURL string, d *event.Dispatcher) error {
	c.txnID++

	buf := make([]byte, cmdBufSize)
	rest, err := amf.EncodeString(buf, cmdConnect)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode connect command name")
	}
	rest, err = amf.EncodeNumber(rest, c.txnID)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode connect transaction id")
	}
	info := amf.Object{Properties: []amf.Property{
		{Type: amf.TypeString, Name: fieldApp, String: app},
		{Type: amf.TypeString, Name: fieldType, String: typeNonprivate},
		{Type: amf.TypeString, Name: fieldTcURL, String: tcURL},
	}}
	rest, err = amf.Encode(&info, rest)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode connect info object")
	}
	payload := buf[:len(buf)-len(rest)]

	if _, err := c.Write(NewCommand(CSIDCommand, 0, payload)); err != nil {
		return errors.Wrap(err, "rtmp: could not write connect command")
	}

	for {
		msg, err := c.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "rtmp: connect reply not received")
		}
		if msg.TypeID != TypeCommandAMF0 {
			continue
		}
		name, txn, obj, err := decodeCommand(msg.Payload)
		if err != nil {
			c.log.Warning(pkg+"could not decode command during connect", "error", err)
			continue
		}
		if name == cmdResult && txn == c.txnID {
			_ = obj
			d.Dispatch(event.ConnectSuccess, nil)
			return nil
		}
	}
}

// CreateStream sends createStream and blocks for the server-assigned
// message stream id (spec.md §4.5 "Ask connection for a new stream id").
func (c *Conn) CreateStream() (uint32, error) {
	c.txnID++
	txn := c.txnID

	buf := make([]byte, cmdBufSize)
	rest, err := amf.EncodeString(buf, cmdCreateStream)
	if err != nil {
		return 0, errors.Wrap(err, "rtmp: could not encode createStream command name")
	}
	rest, err = amf.EncodeNumber(rest, txn)
	if err != nil {
		return 0, errors.Wrap(err, "rtmp: could not encode createStream transaction id")
	}
	rest[0] = amf.TypeNull
	rest = rest[1:]
	payload := buf[:len(buf)-len(rest)]

	if _, err := c.Write(NewCommand(CSIDCommand, 0, payload)); err != nil {
		return 0, errors.Wrap(err, "rtmp: could not write createStream command")
	}

	for {
		msg, err := c.ReadMessage()
		if err != nil {
			return 0, errors.Wrap(err, "rtmp: createStream reply not received")
		}
		if msg.TypeID != TypeCommandAMF0 {
			continue
		}
		name, gotTxn, obj, err := decodeCommand(msg.Payload)
		if err != nil {
			c.log.Warning(pkg+"could not decode command during createStream", "error", err)
			continue
		}
		if name != cmdResult || gotTxn != txn {
			continue
		}
		id, err := obj.NumberProperty("", 3)
		if err != nil {
			return 0, errors.Wrap(err, "rtmp: createStream result missing stream id")
		}
		return uint32(id), nil
	}
}

// Publish sends the NetStream publish command for name in live mode on
// streamID (spec.md §4.5 Open -> Publish "Send publish command chunk").
// It does not wait for a reply; the server's NetStream.Publish.Start
// notification arrives later through Serve.
func (c *Conn) Publish(streamID uint32, name string) error {
	c.txnID++

	buf := make([]byte, cmdBufSize)
	rest, err := amf.EncodeString(buf, cmdPublish)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode publish command name")
	}
	rest, err = amf.EncodeNumber(rest, c.txnID)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode publish transaction id")
	}
	rest[0] = amf.TypeNull
	rest = rest[1:]
	rest, err = amf.EncodeString(rest, name)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode publish stream name")
	}
	rest, err = amf.EncodeString(rest, modeLive)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode publish mode")
	}
	payload := buf[:len(buf)-len(rest)]

	if _, err := c.Write(NewCommand(CSIDCommand, streamID, payload)); err != nil {
		return errors.Wrap(err, "rtmp: could not write publish command")
	}
	return nil
}

// FCUnpublish sends the (non-standard, widely-implemented) FCUnpublish
// notification for name, the first step of tearing down a publish
// session (spec.md §4.5 Publishing -> Initialized).
func (c *Conn) FCUnpublish(name string) error {
	c.txnID++

	buf := make([]byte, cmdBufSize)
	rest, err := amf.EncodeString(buf, cmdFCUnpublish)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode FCUnpublish command name")
	}
	rest, err = amf.EncodeNumber(rest, c.txnID)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode FCUnpublish transaction id")
	}
	rest[0] = amf.TypeNull
	rest = rest[1:]
	rest, err = amf.EncodeString(rest, name)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode FCUnpublish stream name")
	}
	payload := buf[:len(buf)-len(rest)]

	if _, err := c.Write(NewCommand(CSIDCommand, 0, payload)); err != nil {
		return errors.Wrap(err, "rtmp: could not write FCUnpublish command")
	}
	return nil
}

// DeleteStream tells the server streamID is no longer in use (spec.md
// §4.5 Publishing -> Initialized).
func (c *Conn) DeleteStream(streamID uint32) error {
	c.txnID++

	buf := make([]byte, cmdBufSize)
	rest, err := amf.EncodeString(buf, cmdDeleteStream)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode deleteStream command name")
	}
	rest, err = amf.EncodeNumber(rest, c.txnID)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode deleteStream transaction id")
	}
	rest[0] = amf.TypeNull
	rest = rest[1:]
	rest, err = amf.EncodeNumber(rest, float64(streamID))
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode deleteStream stream id")
	}
	payload := buf[:len(buf)-len(rest)]

	if _, err := c.Write(NewCommand(CSIDCommand, 0, payload)); err != nil {
		return errors.Wrap(err, "rtmp: could not write deleteStream command")
	}
	return nil
}

// CloseStream sends closeStream on streamID, the last step of tearing down
// a publish session (spec.md §4.5 Publishing -> Initialized).
func (c *Conn) CloseStream(streamID uint32) error {
	c.txnID++

	buf := make([]byte, cmdBufSize)
	rest, err := amf.EncodeString(buf, cmdCloseStream)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode closeStream command name")
	}
	rest, err = amf.EncodeNumber(rest, c.txnID)
	if err != nil {
		return errors.Wrap(err, "rtmp: could not encode closeStream transaction id")
	}
	rest[0] = amf.TypeNull
	rest = rest[1:]
	payload := buf[:len(buf)-len(rest)]

	if _, err := c.Write(NewCommand(CSIDCommand, streamID, payload)); err != nil {
		return errors.Wrap(err, "rtmp: could not write closeStream command")
	}
	return nil
}

// Serve starts a background goroutine that reads inbound messages and
// dispatches onStatus notifications to d by their status code (spec.md
// §4.6, §6 "Status events consumed"). It must be started only after
// Connect and CreateStream have completed, since they read synchronously
// from the same socket. The goroutine exits when ReadMessage errors,
// which it logs at error level; per spec.md §7 reconnection is the
// caller's responsibility.
func (c *Conn) Serve(d *event.Dispatcher) {
	go func() {
		for {
			msg, err := c.ReadMessage()
			if err != nil {
				c.log.Error(pkg+"serve loop exiting", "error", err)
				return
			}
			switch msg.TypeID {
			case TypeCommandAMF0:
				c.handleCommand(msg.Payload, d)
			default:
				// Audio/video/data messages are not expected inbound for a
				// publish-only session; ignore per spec.md §1 scope.
			}
		}
	}()
}

func (c *Conn) handleCommand(payload []byte, d *event.Dispatcher) {
	name, _, obj, err := decodeCommand(payload)
	if err != nil {
		c.log.Warning(pkg+"could not decode inbound command", "error", err)
		return
	}
	if name != cmdOnStatus {
		return
	}
	info, err := obj.ObjectProperty("", 3)
	if err != nil {
		c.log.Warning(pkg+"onStatus missing info object", "error", err)
		return
	}
	code, err := info.StringProperty(fieldCode, -1)
	if err != nil {
		c.log.Warning(pkg+"onStatus missing code", "error", err)
		return
	}
	switch code {
	case statusPublishStart:
		d.Dispatch(event.PublishStart, nil)
	case statusDimensionChange:
		w, werr := info.NumberProperty(fieldWidth, -1)
		h, herr := info.NumberProperty(fieldHeight, -1)
		if werr != nil || herr != nil {
			c.log.Warning(pkg + "dimension change missing width/height")
			return
		}
		d.Dispatch(event.VideoDimensionChange, VideoDimension{Width: w, Height: h})
	default:
		c.log.Debug(pkg+"unhandled onStatus code", "code", code)
	}
}

// decodeCommand decodes a CommandAMF0 payload's positional values: the
// method name, the transaction id, and the remaining object (if present),
// mirroring the historical handleInvoke decode (name/txn/object by index).
func decodeCommand(payload []byte) (name string, txn float64, obj *amf.Object, err error) {
	var o amf.Object
	if _, err := amf.Decode(&o, payload, false); err != nil {
		return "", 0, nil, errors.Wrap(err, "rtmp: could not decode command")
	}
	name, err = o.StringProperty("", 0)
	if err != nil {
		return "", 0, nil, errors.Wrap(err, "rtmp: command missing method name")
	}
	txn, err = o.NumberProperty("", 1)
	if err != nil {
		return "", 0, nil, errors.Wrap(err, "rtmp: command missing transaction id")
	}
	return name, txn, &o, nil
}
