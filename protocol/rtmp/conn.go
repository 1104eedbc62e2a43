/*
NAME
  conn.go

DESCRIPTION
  A minimal RTMP connection: TCP dial, the plain handshake, and framed
  message read/write built on the chunk codec. The socket and handshake
  are external collaborators from the core's point of view (spec.md
  §1) — this file is the concrete, runnable implementation of that
  collaborator, kept separate so the chunk codec and stream state
  machine can be exercised against fakes in tests.

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

package rtmp

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

const handshakeSize = 1536

// Configuration defaults (spec.md §6).
const (
	defaultTimeout = 10 * time.Second
)

// Outbound chunk staging uses the same cross-goroutine ring buffer
// revid/senders.go's rtmpSender hands off to, so a slow or stalled socket
// write never blocks the caller of Conn.Write (spec.md §5 "the socket
// write must not block the state machine indefinitely"). sendPoolReadTimeout
// and the initial element sizing mirror rtmpPoolReadTimeout/
// adjustedRTMPPoolElementSize there; the pool self-tunes its element size
// on pool.ErrTooLong exactly as that sender does.
const (
	sendPoolReadTimeout    = 1 * time.Second
	sendPoolWriteTimeout   = 5 * time.Second
	sendPoolElementSize    = 4096
	sendPoolMaxBufferBytes = 8 << 20 // 8MiB.
)

// Socket is what the chunk codec and stream state machine require of the
// transport layer: a framed message write and a delimited read of framed
// bytes (spec.md §1). *Conn satisfies it; tests may supply a fake.
type Socket interface {
	Write(msg Message) (int, error)
	// ReadMessage blocks until one complete Message has been decoded from
	// the connection, or returns an error.
	ReadMessage() (*Message, error)
	ByteCount() int64
	Close() error
}

// Conn is a live RTMP connection: a dialed TCP socket plus the chunk codec
// state needed to write and read framed Messages across it.
type Conn struct {
	nc      net.Conn
	timeout time.Duration
	log     logging.Logger

	enc Encoder
	dec Decoder
	buf []byte // Unconsumed bytes read from nc, awaiting decode.

	sendPool     *pool.Buffer
	sendElemSize int
	sendDone     chan struct{}
	sendWG       sync.WaitGroup

	bytesOut int64 // Atomic; spec.md §5 "must be updated atomically".
	bytesIn  int64

	txnID float64 // Command transaction id counter, incremented by every command sent.
}

// Option configures a Conn at Dial time.
type Option func(*Conn) error

// WithTimeout overrides the default read/write deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Conn) error {
		if d <= 0 {
			return errors.New("rtmp: non-positive timeout")
		}
		c.timeout = d
		return nil
	}
}

// WithChunkSize sets the outbound chunk size, overriding DefaultChunkSize.
func WithChunkSize(size uint32) Option {
	return func(c *Conn) error {
		if size == 0 {
			return ErrInvalidChunkSize
		}
		c.enc.ChunkSize = size
		return nil
	}
}

// Dial connects to the RTMP server at addr (host:port), performs the RTMP
// handshake, and returns a ready-to-use Conn.
func Dial(addr string, log logging.Logger, opts ...Option) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, defaultTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "rtmp: dial failed")
	}
	c := &Conn{nc: nc, timeout: defaultTimeout, log: log}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			nc.Close()
			return nil, err
		}
	}
	if err := c.handshake(); err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "rtmp: handshake failed")
	}

	c.sendElemSize = sendPoolElementSize
	c.sendPool = pool.NewBuffer(sendPoolMaxBufferBytes/c.sendElemSize, c.sendElemSize, sendPoolWriteTimeout)
	c.sendDone = make(chan struct{})
	c.sendWG.Add(1)
	go c.sendLoop()

	return c, nil
}

// handshake performs the plain (unencrypted) RTMP handshake (C0/C1/C2,
// S0/S1/S2). RTMPE/RTMPS are out of scope (spec.md §1 Non-goals).
func (c *Conn) handshake() error {
	var c1 [handshakeSize]byte
	binary.BigEndian.PutUint32(c1[:4], uint32(time.Now().Unix()))
	for i := 8; i < handshakeSize; i++ {
		c1[i] = byte(rand.Intn(256))
	}

	if err := c.rawWrite(append([]byte{3}, c1[:]...)); err != nil {
		return errors.Wrap(err, "could not write C0/C1")
	}
	c.log.Debug(pkg + "handshake C0/C1 sent")

	var s0 [1]byte
	if _, err := c.rawRead(s0[:]); err != nil {
		return errors.Wrap(err, "could not read S0")
	}
	var s1 [handshakeSize]byte
	if _, err := c.rawRead(s1[:]); err != nil {
		return errors.Wrap(err, "could not read S1")
	}

	if err := c.rawWrite(s1[:]); err != nil {
		return errors.Wrap(err, "could not write C2")
	}

	var s2 [handshakeSize]byte
	if _, err := c.rawRead(s2[:]); err != nil {
		return errors.Wrap(err, "could not read S2")
	}
	if !bytes.Equal(s2[:], c1[:]) {
		c.log.Warning(pkg + "handshake echo mismatch; continuing anyway")
	}
	c.log.Debug(pkg + "handshake complete")
	return nil
}

func (c *Conn) rawWrite(b []byte) error {
	if err := c.nc.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	_, err := c.nc.Write(b)
	return err
}

func (c *Conn) rawRead(b []byte) (int, error) {
	if err := c.nc.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return io.ReadFull(c.nc, b)
}

// Write encodes msg as chunk stream bytes and stages them on the outbound
// pool buffer for sendLoop to deliver, returning as soon as the bytes are
// queued (spec.md §5). The byte counter is incremented at staging time,
// matching rtmpSender.Write's accounting.
func (c *Conn) Write(msg Message) (int, error) {
	out := c.enc.Encode(nil, msg)
	if _, err := c.sendPool.Write(out); err != nil {
		if err != pool.ErrTooLong {
			return 0, errors.Wrap(err, "rtmp: pool buffer write failed")
		}
		// Element size too small for this chunk; grow it and retry, as
		// rtmpSender.Write does on the same error.
		c.sendElemSize = len(out) * 2
		c.sendPool = pool.NewBuffer(sendPoolMaxBufferBytes/c.sendElemSize, c.sendElemSize, sendPoolWriteTimeout)
		c.log.Info(pkg+"adjusted send pool element size", "size", c.sendElemSize)
		if _, err := c.sendPool.Write(out); err != nil {
			return 0, errors.Wrap(err, "rtmp: pool buffer write failed after resize")
		}
	}
	c.sendPool.Flush()
	atomic.AddInt64(&c.bytesOut, int64(len(out)))
	return len(out), nil
}

// sendLoop drains the outbound pool buffer onto the socket, the same
// shape as revid/senders.go's rtmpSender.output.
func (c *Conn) sendLoop() {
	defer c.sendWG.Done()
	for {
		select {
		case <-c.sendDone:
			return
		default:
		}
		chunk, err := c.sendPool.Next(sendPoolReadTimeout)
		switch err {
		case nil:
		case io.EOF, pool.ErrTimeout:
			continue
		default:
			c.log.Warning(pkg+"send pool read error", "error", err)
			continue
		}
		if err := c.rawWrite(chunk.Bytes()); err != nil {
			c.log.Warning(pkg+"send error", "error", err)
		}
		chunk.Close()
	}
}

// readChunkBufSize is the size of each raw read from the socket while
// accumulating bytes for the chunk decoder.
const readChunkBufSize = 4096

// ReadMessage blocks until a complete inbound Message has been decoded.
func (c *Conn) ReadMessage() (*Message, error) {
	for {
		for len(c.buf) > 0 {
			n, msg, err := c.dec.Decode(c.buf)
			switch err {
			case nil:
				c.buf = c.buf[n:]
				if msg != nil {
					if msg.TypeID == TypeSetChunkSize && len(msg.Payload) >= 4 {
						c.dec.ChunkSize = binary.BigEndian.Uint32(msg.Payload) & 0x7fffffff
					}
					return msg, nil
				}
				continue
			case ErrUnknownMsgType:
				// spec.md §4.1/§7: log and drop rather than fail the
				// connection; the offending message's bytes are already
				// accounted for in n.
				c.log.Warning(pkg + "decode: unknown message type; dropping")
				c.buf = c.buf[n:]
				continue
			case ErrNeedMore:
				// Fall through to read more bytes below.
			default:
				return nil, errors.Wrap(err, "rtmp: decode error")
			}
			break
		}

		tmp := make([]byte, readChunkBufSize)
		if err := c.nc.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
		n, err := c.nc.Read(tmp)
		if n > 0 {
			atomic.AddInt64(&c.bytesIn, int64(n))
			c.buf = append(c.buf, tmp[:n]...)
		}
		if err != nil {
			return nil, errors.Wrap(err, "rtmp: socket read failed")
		}
	}
}

// ByteCount returns the cumulative number of bytes passed to Write, counted
// when they are staged for sendLoop (spec.md §6 byte_count).
func (c *Conn) ByteCount() int64 { return atomic.LoadInt64(&c.bytesOut) }

// Close stops the send loop and closes the underlying TCP connection.
func (c *Conn) Close() error {
	close(c.sendDone)
	c.sendWG.Wait()
	return c.nc.Close()
}
