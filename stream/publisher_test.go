/*
NAME
  publisher_test.go

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package stream

import (
	"sync"
	"testing"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtmppub/event"
	"github.com/ausocean/rtmppub/protocol/rtmp"
)

// testLogger discards everything; only used to satisfy logging.Logger.
type testLogger struct{}

func (testLogger) SetLevel(int8)                              {}
func (testLogger) Log(int8, string, ...interface{})            {}
func (testLogger) Debug(string, ...interface{})                {}
func (testLogger) Info(string, ...interface{})                 {}
func (testLogger) Warning(string, ...interface{})              {}
func (testLogger) Error(string, ...interface{})                {}
func (testLogger) Fatal(string, ...interface{})                {}

// fakeConn is a connection fake recording every call a Publisher makes,
// standing in for the external socket collaborator (spec.md §1).
type fakeConn struct {
	mu sync.Mutex

	streamID uint32

	writes        []rtmp.Message
	published     []string
	unpublished   []string
	deletedStream []uint32
	closedStream  []uint32
	bytesOut      int64
}

func (f *fakeConn) Write(msg rtmp.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, msg)
	n := len(msg.Payload)
	f.bytesOut += int64(n)
	return n, nil
}

func (f *fakeConn) CreateStream() (uint32, error) { return f.streamID, nil }

func (f *fakeConn) Publish(streamID uint32, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, name)
	return nil
}

func (f *fakeConn) FCUnpublish(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpublished = append(f.unpublished, name)
	return nil
}

func (f *fakeConn) DeleteStream(streamID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedStream = append(f.deletedStream, streamID)
	return nil
}

func (f *fakeConn) CloseStream(streamID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedStream = append(f.closedStream, streamID)
	return nil
}

func (f *fakeConn) ByteCount() int64 { return f.bytesOut }

func newTestPublisher(streamID uint32) (*Publisher, *fakeConn, *event.Dispatcher) {
	conn := &fakeConn{streamID: streamID}
	disp := &event.Dispatcher{}
	p := New(conn, disp, testLogger{}, Metadata{VideoCodec: 0 /* CodecAVC */})
	return p, conn, disp
}

// TestPublishQueueBeforeConnect checks spec.md §8 S5: publish("x") before
// connect-success queues one command; on connect-success, exactly one
// publish command chunk is written with the stream id from createStream.
func TestPublishQueueBeforeConnect(t *testing.T) {
	p, conn, disp := newTestPublisher(7)
	defer p.Shutdown()

	p.Publish("x")
	p.flush()
	if len(conn.published) != 0 {
		t.Fatalf("publish sent before connect-success: %v", conn.published)
	}

	disp.Dispatch(event.ConnectSuccess, nil)
	p.flush()

	if len(conn.published) != 1 || conn.published[0] != "x" {
		t.Fatalf("got published = %v, want exactly one \"x\"", conn.published)
	}
	if p.State() != Publish {
		t.Errorf("state = %v, want Publish", p.State())
	}
	if p.streamID != 7 {
		t.Errorf("streamID = %d, want 7 (from createStream)", p.streamID)
	}
}

// TestPublishStartTransitionsToPublishing checks spec.md §4.5 Publish ->
// Publishing: NetStream.Publish.Start triggers @setDataFrame onMetaData.
func TestPublishStartTransitionsToPublishing(t *testing.T) {
	p, conn, disp := newTestPublisher(1)
	defer p.Shutdown()

	disp.Dispatch(event.ConnectSuccess, nil)
	p.Publish("x")
	p.flush()

	disp.Dispatch(event.PublishStart, nil)
	p.flush()

	if p.State() != Publishing {
		t.Fatalf("state = %v, want Publishing", p.State())
	}
	if len(conn.writes) != 1 || conn.writes[0].TypeID != rtmp.TypeDataAMF0 {
		t.Fatalf("expected exactly one DataAMF0 write for onMetaData, got %v", conn.writes)
	}
}

// TestFramesDroppedBeforePublishing checks that encoder callbacks are
// no-ops outside Publishing (spec.md §7 "Protocol error").
func TestFramesDroppedBeforePublishing(t *testing.T) {
	p, conn, _ := newTestPublisher(1)
	defer p.Shutdown()

	p.OnEncodedAudio([]byte{1, 2, 3}, 0)
	p.OnEncodedVideo(0, 0, true, []byte{1, 2, 3})
	p.flush()

	if len(conn.writes) != 0 {
		t.Errorf("frame written while not Publishing: %v", conn.writes)
	}
}

// TestCloseTearsDownPublishingSession checks spec.md §4.5 Publishing ->
// Initialized: FCUnpublish, deleteStream, closeStream are all sent, and
// the state returns to Initialized.
func TestCloseTearsDownPublishingSession(t *testing.T) {
	p, conn, disp := newTestPublisher(3)
	defer p.Shutdown()

	disp.Dispatch(event.ConnectSuccess, nil)
	p.Publish("x")
	disp.Dispatch(event.PublishStart, nil)
	p.flush()

	p.Close()
	p.flush()

	if p.State() != Initialized {
		t.Errorf("state = %v, want Initialized", p.State())
	}
	if len(conn.unpublished) != 1 || len(conn.deletedStream) != 1 || len(conn.closedStream) != 1 {
		t.Errorf("teardown commands incomplete: unpublish=%v delete=%v close=%v",
			conn.unpublished, conn.deletedStream, conn.closedStream)
	}
}

// TestCloseFromInitializedIsNoOp checks spec.md §4.5 "any -> Initialized
// ... skipping steps not applicable".
func TestCloseFromInitializedIsNoOp(t *testing.T) {
	p, conn, _ := newTestPublisher(1)
	defer p.Shutdown()

	p.Close()
	p.flush()

	if len(conn.unpublished)+len(conn.deletedStream)+len(conn.closedStream) != 0 {
		t.Errorf("close from Initialized sent teardown commands: %+v", conn)
	}
}

// TestCodecFormatCachedUntilPublishing checks SPEC_FULL.md §6's supplement:
// a format received before Publishing is cached and re-sent once metadata
// is emitted, rather than lost.
func TestCodecFormatCachedUntilPublishing(t *testing.T) {
	p, conn, disp := newTestPublisher(1)
	defer p.Shutdown()

	p.OnCodecFormat(FormatAVC, []byte{0x01, 0x02})
	p.flush()
	if len(conn.writes) != 0 {
		t.Fatalf("sequence header sent before Publishing: %v", conn.writes)
	}

	disp.Dispatch(event.ConnectSuccess, nil)
	p.Publish("x")
	disp.Dispatch(event.PublishStart, nil)
	p.flush()

	var sawVideoSeqHeader bool
	for _, m := range conn.writes {
		if m.TypeID == rtmp.TypeVideo {
			sawVideoSeqHeader = true
		}
	}
	if !sawVideoSeqHeader {
		t.Error("cached video format was not re-sent on Publishing")
	}
}

// TestByteCountTracksWrites checks spec.md §6 "byte_count() -> i64".
func TestByteCountTracksWrites(t *testing.T) {
	p, _, disp := newTestPublisher(1)
	defer p.Shutdown()

	disp.Dispatch(event.ConnectSuccess, nil)
	p.Publish("x")
	disp.Dispatch(event.PublishStart, nil)
	p.flush()

	before := p.ByteCount()
	p.OnEncodedAudio([]byte{1, 2, 3, 4, 5}, 0.1)
	p.flush()
	if p.ByteCount() <= before {
		t.Errorf("byte count did not advance: before=%d after=%d", before, p.ByteCount())
	}
}
