/*
NAME
  main.go

DESCRIPTION
  publish is a standalone command that reads a raw Annex-B H.264
  elementary stream and publishes it live to an RTMP server, driving
  protocol/rtmp and stream.Publisher exactly as an encoder collaborator
  is expected to (spec.md §1, §6). It exists to exercise the publisher
  end to end outside of the test suite; camera/microphone capture and
  settings persistence are out of scope (spec.md Non-goals).

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

// Package main implements the publish command.
package main

import (
	"flag"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtmppub/container/flv"
	"github.com/ausocean/rtmppub/event"
	"github.com/ausocean/rtmppub/protocol/rtmp"
	"github.com/ausocean/rtmppub/stream"
)

// Logging configuration, mirroring cmd/rv's file logger (spec.md's ambient
// logging stack carries over even though netsender/cloud logging does not).
const (
	logPath      = "publish.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

const pkg = "publish: "

func main() {
	url := flag.String("url", "", "destination rtmp:// URL, e.g. rtmp://localhost/live/key")
	name := flag.String("name", "", "stream key / playpath; defaults to the URL's path")
	input := flag.String("input", "-", "path to a raw Annex-B H.264 file, or - for stdin")
	fps := flag.Float64("fps", 25, "input frame rate, used to derive synthetic pts/dts")
	width := flag.Float64("width", 1280, "onMetaData width")
	height := flag.Float64("height", 720, "onMetaData height")
	chunkSize := flag.Uint("chunk-size", uint(rtmp.DefaultChunkSize), "outbound RTMP chunk size")
	flag.Parse()

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(logVerbosity, fileLog, logSuppress)

	if *url == "" {
		log.Fatal(pkg + "url is required")
	}

	data, err := readInput(*input)
	if err != nil {
		log.Fatal(pkg+"could not read input", "error", err)
	}
	frames, err := decodeAnnexB(data)
	if err != nil {
		log.Fatal(pkg+"could not parse Annex-B input", "error", err)
	}
	log.Info(pkg+"parsed input", "frames", len(frames))

	conn, app, playpath, err := rtmp.DialURL(*url, log, rtmp.WithChunkSize(uint32(*chunkSize)))
	if err != nil {
		log.Fatal(pkg+"could not dial", "error", err)
	}
	defer conn.Close()

	streamName := *name
	if streamName == "" {
		streamName = playpath
	}

	disp := &event.Dispatcher{}
	publishing := make(chan struct{})
	var once sync.Once
	disp.Subscribe(event.PublishStart, func(interface{}) {
		once.Do(func() { close(publishing) })
	})

	meta := stream.Metadata{
		Width:         *width,
		Height:        *height,
		Framerate:     *fps,
		VideoCodec:    flv.CodecAVC,
		VideoDatarate: 0,
		AudioDatarate: 0,
	}
	pub := stream.New(conn, disp, log, meta)
	defer pub.Shutdown()

	log.Debug(pkg+"connecting", "app", app)
	if err := conn.Connect(app, *url, disp); err != nil {
		log.Fatal(pkg+"connect failed", "error", err)
	}
	conn.Serve(disp)

	pub.Publish(streamName)
	waitForPublishing(publishing, log)

	log.Info(pkg+"publishing", "name", streamName)
	frameDuration := time.Duration(float64(time.Second) / *fps)
	var pts float64
	for _, f := range frames {
		if f.isConfig {
			pub.OnCodecFormat(stream.FormatAVC, f.record)
			continue
		}
		pub.OnEncodedVideo(pts, pts, f.keyFrame, f.sample)
		pts += frameDuration.Seconds()
		time.Sleep(frameDuration)
	}

	log.Info(pkg+"input exhausted, closing", "bytes", pub.ByteCount())
	pub.Close()
	time.Sleep(200 * time.Millisecond) // Let the teardown commands drain before Close tears down the socket.
}

// waitForPublishing blocks until the NetStream.Publish.Start event closes
// publishing, or gives up after a few seconds. Publisher.state lives on its
// own work-queue goroutine (spec.md §5) with no synchronized read exposed
// for cross-goroutine polling, so the status event is the only safe signal.
func waitForPublishing(publishing <-chan struct{}, log logging.Logger) {
	select {
	case <-publishing:
	case <-time.After(10 * time.Second):
		log.Warning(pkg + "timed out waiting for NetStream.Publish.Start")
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
