/*
NAME
  publisher.go

DESCRIPTION
  The publish lifecycle state machine (spec.md §4.5): Initialized, Open,
  Publish, Publishing, driven by status events arriving on an
  event.Dispatcher and by the four public operations an encoder
  collaborator calls (publish, close, on_encoded_audio, on_encoded_video,
  plus on_codec_format). All state mutation happens on one serial work
  queue, the same shape as revid.Revid's error-handling goroutine
  (spec.md §5).

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

// Package stream drives the RTMP publish lifecycle and packages encoder
// output as FLV-framed Audio/Video/Data messages, per spec.md §4.5.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/ausocean/utils/bitrate"
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtmppub/container/flv"
	"github.com/ausocean/rtmppub/event"
	"github.com/ausocean/rtmppub/media/rebase"
	"github.com/ausocean/rtmppub/protocol/rtmp"
)

// ReadyState is the publish lifecycle state (spec.md §3 "Publish Ready
// State").
type ReadyState uint8

const (
	Initialized ReadyState = iota
	Open
	Publish
	Publishing
)

func (s ReadyState) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Open:
		return "open"
	case Publish:
		return "publish"
	case Publishing:
		return "publishing"
	default:
		return "unknown"
	}
}

// FormatKind identifies which codec a sequence header or encoded sample
// belongs to (spec.md §4.3).
type FormatKind uint8

const (
	FormatAAC FormatKind = iota
	FormatAVC
	FormatHEVC
)

// connection is what the stream state machine requires of the RTMP
// connection layer: the command exchange and the framed write, nothing
// more (spec.md §5 "the socket is owned by the connection; the stream
// holds a non-owning back-reference"). *rtmp.Conn satisfies it; tests
// may supply a fake.
type connection interface {
	Write(msg rtmp.Message) (int, error)
	CreateStream() (uint32, error)
	Publish(streamID uint32, name string) error
	FCUnpublish(name string) error
	DeleteStream(streamID uint32) error
	CloseStream(streamID uint32) error
	ByteCount() int64
}

// workQueueDepth bounds the number of pending closures; encoder callbacks
// enqueue and return immediately (spec.md §5 "Suspension points"), so this
// only needs to absorb a short burst rather than buffer indefinitely.
const workQueueDepth = 256

// Publisher drives one publish session over a connection, packaging
// encoder output as FLV tags and emitting them as RTMP chunk stream
// messages. The zero value is not usable; construct with New.
type Publisher struct {
	conn connection
	disp *event.Dispatcher
	log  logging.Logger

	work chan func()
	done chan struct{}
	wg   sync.WaitGroup

	// Confined to the work queue goroutine (spec.md §5 "Shared state").
	state    ReadyState
	streamID uint32
	name     string
	queued   string
	hasQueue bool

	rebaser      rebase.Rebaser
	audioTS      uint32
	videoTS      uint32
	audioBuilder flv.AudioBuilder
	videoBuilder flv.VideoBuilder

	meta         Metadata
	audioFormat  []byte
	videoFormat  []byte
	haveAudioFmt bool
	haveVideoFmt bool

	bitrate bitrate.Calculator

	connectTok event.Token
	publishTok event.Token
	dimTok     event.Token

	byteCount int64 // Atomic; spec.md §5 "must be updated atomically".
}

// New constructs a Publisher bound to conn and subscribes it to conn's
// status events on disp (spec.md §9 "the stream subscribes at
// construction and unsubscribes on drop"). meta seeds the onMetaData
// fields that don't change for the life of the session (codec,
// framerate, datarates); Width/Height may later be overridden by a
// NetStream.Video.DimensionChange event.
func New(conn connection, disp *event.Dispatcher, log logging.Logger, meta Metadata) *Publisher {
	p := &Publisher{
		conn: conn,
		disp: disp,
		log:  log,
		work: make(chan func(), workQueueDepth),
		done: make(chan struct{}),
		meta: meta,
	}
	p.videoBuilder.Codec = meta.VideoCodec

	p.connectTok = disp.Subscribe(event.ConnectSuccess, func(interface{}) {
		p.enqueue(p.handleConnectSuccess)
	})
	p.publishTok = disp.Subscribe(event.PublishStart, func(interface{}) {
		p.enqueue(p.handlePublishStart)
	})
	p.dimTok = disp.Subscribe(event.VideoDimensionChange, func(payload interface{}) {
		dim, ok := payload.(rtmp.VideoDimension)
		if !ok {
			return
		}
		p.enqueue(func() { p.handleDimensionChange(dim) })
	})

	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.work:
			fn()
		case <-p.done:
			return
		}
	}
}

// enqueue posts fn to the stream queue. It never blocks the caller beyond
// a full queue (spec.md §5 "Encoder callbacks enqueue work ... and return
// immediately").
func (p *Publisher) enqueue(fn func()) {
	select {
	case p.work <- fn:
	case <-p.done:
	}
}

// flush blocks until every closure enqueued before this call has run,
// used by tests to synchronize with the stream queue goroutine.
func (p *Publisher) flush() {
	done := make(chan struct{})
	p.enqueue(func() { close(done) })
	<-done
}

// Shutdown stops the stream queue goroutine and unsubscribes from disp.
// Pending work is dropped; callers that need a clean close should call
// Close and give it a chance to run first.
func (p *Publisher) Shutdown() {
	close(p.done)
	p.wg.Wait()
	p.disp.Unsubscribe(p.connectTok)
	p.disp.Unsubscribe(p.publishTok)
	p.disp.Unsubscribe(p.dimTok)
}

// Publish asks the stream to start publishing name in live mode
// (spec.md §6 "publish(name)"). Asynchronous: it enqueues the request and
// returns immediately.
func (p *Publisher) Publish(name string) {
	p.enqueue(func() {
		switch p.state {
		case Initialized:
			// Queued; flushed with a fresh transaction id once Open is
			// reached (spec.md §4.5 "Publish requests issued while
			// Initialized are queued").
			p.queued = name
			p.hasQueue = true
		case Open:
			p.doPublish(name)
		default:
			p.log.Warning("publish called outside Initialized/Open", "state", p.state.String())
		}
	})
}

// Close asynchronously tears down the publish session (spec.md §6
// "close()"). From Initialized it sends no commands and only discards a
// queued Publish request.
func (p *Publisher) Close() {
	p.enqueue(p.doClose)
}

// OnCodecFormat caches kind's decoder configuration record and emits its
// sequence header tag immediately if already Publishing (spec.md §6
// "on_codec_format(format_description)").
func (p *Publisher) OnCodecFormat(kind FormatKind, record []byte) {
	p.enqueue(func() {
		switch kind {
		case FormatAAC:
			p.audioFormat, p.haveAudioFmt = record, true
			if p.state == Publishing {
				p.sendAudioSequenceHeader()
			}
		case FormatAVC:
			p.videoBuilder.Codec = flv.CodecAVC
			p.videoFormat, p.haveVideoFmt = record, true
			if p.state == Publishing {
				p.sendVideoSequenceHeader()
			}
		case FormatHEVC:
			p.videoBuilder.Codec = flv.CodecHEVC
			p.videoFormat, p.haveVideoFmt = record, true
			if p.state == Publishing {
				p.sendVideoSequenceHeader()
			}
		}
	})
}

// OnEncodedAudio accepts one AAC raw frame at presentation time pts
// (seconds) (spec.md §6 "on_encoded_audio(buffer, pts)"). Dropped if not
// Publishing, or if the Rebaser rejects pts (spec.md §7 "Frame drop").
func (p *Publisher) OnEncodedAudio(buffer []byte, pts float64) {
	p.enqueue(func() {
		if p.state != Publishing {
			return
		}
		delta, ok := p.rebaser.Accept(rebase.Audio, pts)
		if !ok {
			return
		}
		p.audioTS += delta
		tag := p.audioBuilder.Frame(p.audioTS, buffer)
		p.write(rtmp.NewAudio(p.streamID, p.audioTS, tag))
	})
}

// OnEncodedVideo accepts one AVC/HEVC access unit with decode timestamp
// dts and presentation timestamp pts, both seconds (spec.md §6
// "on_encoded_video(format, sample)"). Dropped under the same conditions
// as OnEncodedAudio.
func (p *Publisher) OnEncodedVideo(pts, dts float64, keyFrame bool, sample []byte) {
	p.enqueue(func() {
		if p.state != Publishing {
			return
		}
		delta, ok := p.rebaser.Accept(rebase.Video, dts)
		if !ok {
			return
		}
		p.videoTS += delta
		ct := p.rebaser.CompositionTime(pts, dts)
		tag := p.videoBuilder.Frame(p.videoTS, keyFrame, ct, sample)
		p.write(rtmp.NewVideo(p.streamID, p.videoTS, tag))
	})
}

// ByteCount returns the cumulative number of bytes this Publisher has
// written to the connection (spec.md §6 "byte_count() -> i64").
func (p *Publisher) ByteCount() int64 { return atomic.LoadInt64(&p.byteCount) }

// Bitrate returns the most recently computed outbound bitrate, in bits
// per second. Optional telemetry, mirroring revid.Revid.Bitrate().
func (p *Publisher) Bitrate() int { return p.bitrate.Bitrate() }

// State returns the current ReadyState. Intended for tests and telemetry;
// callers driving the publish lifecycle should use the status events and
// public operations instead of polling this.
func (p *Publisher) State() ReadyState { return p.state }

func (p *Publisher) handleConnectSuccess() {
	if p.state != Initialized {
		return
	}
	id, err := p.conn.CreateStream()
	if err != nil {
		p.log.Error("createStream failed", "error", err)
		return
	}
	p.streamID = id
	p.state = Open
	if p.hasQueue {
		name := p.queued
		p.hasQueue = false
		p.doPublish(name)
	}
}

func (p *Publisher) doPublish(name string) {
	if err := p.conn.Publish(p.streamID, name); err != nil {
		p.log.Error("publish command failed", "error", err)
		return
	}
	p.name = name
	p.state = Publish
}

func (p *Publisher) handlePublishStart() {
	if p.state != Publish {
		return
	}
	p.state = Publishing
	p.rebaser.Reset()
	p.audioTS, p.videoTS = 0, 0
	p.sendMetadata()
}

func (p *Publisher) handleDimensionChange(dim rtmp.VideoDimension) {
	p.meta.Width, p.meta.Height = dim.Width, dim.Height
	if p.state == Publishing {
		p.sendMetadata()
	}
}

func (p *Publisher) doClose() {
	switch p.state {
	case Initialized:
		p.hasQueue = false
		return
	case Publishing, Publish:
		if err := p.conn.FCUnpublish(p.name); err != nil {
			p.log.Warning("FCUnpublish failed", "error", err)
		}
		if err := p.conn.DeleteStream(p.streamID); err != nil {
			p.log.Warning("deleteStream failed", "error", err)
		}
		if err := p.conn.CloseStream(p.streamID); err != nil {
			p.log.Warning("closeStream failed", "error", err)
		}
	}
	p.state = Initialized
	p.hasQueue = false
	p.rebaser.Reset()
	p.haveAudioFmt, p.haveVideoFmt = false, false
}

// sendMetadata emits @setDataFrame onMetaData and re-sends any cached
// sequence headers, so a format received before Publishing (or before a
// DimensionChange) is not lost (SPEC_FULL.md §6 supplement).
func (p *Publisher) sendMetadata() {
	payload, err := encodeOnMetaData(p.meta)
	if err != nil {
		p.log.Error("could not encode onMetaData", "error", err)
		return
	}
	p.write(rtmp.NewData(rtmp.CSIDData, p.streamID, payload))
	if p.haveAudioFmt {
		p.sendAudioSequenceHeader()
	}
	if p.haveVideoFmt {
		p.sendVideoSequenceHeader()
	}
}

func (p *Publisher) sendAudioSequenceHeader() {
	tag := p.audioBuilder.SequenceHeader(p.audioTS, p.audioFormat)
	p.write(rtmp.NewAudio(p.streamID, p.audioTS, tag))
}

func (p *Publisher) sendVideoSequenceHeader() {
	tag := p.videoBuilder.SequenceHeader(p.videoTS, p.videoFormat)
	p.write(rtmp.NewVideo(p.streamID, p.videoTS, tag))
}

func (p *Publisher) write(msg rtmp.Message) {
	n, err := p.conn.Write(msg)
	if err != nil {
		p.log.Warning("write failed", "error", err)
		return
	}
	atomic.AddInt64(&p.byteCount, int64(n))
	p.bitrate.Report(n)
}
