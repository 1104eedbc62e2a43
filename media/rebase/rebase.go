/*
NAME
  rebase.go

DESCRIPTION
  Package rebase converts monotonic media presentation timestamps
  (seconds, floating point, as handed to the publisher by the audio
  and video encoders) into the non-negative millisecond deltas RTMP
  chunk timestamps require. See spec.md §4.4.

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

// Package rebase implements the timestamp rebasing and composition-time
// calculation described in spec.md §4.4.
package rebase

import "math"

// DefaultCompositionOffset is the default constant added to the
// presentation-minus-decode difference before conversion to milliseconds
// (spec.md §4.4, §9 "composition-time offset"). It is a workaround for
// encoders whose PTS/DTS relationship would otherwise occasionally yield a
// negative composition time; kept configurable but defaulted to match the
// source behaviour.
const DefaultCompositionOffset = 3.0 / 30.0 // seconds.

// Channel distinguishes the two independently-clocked media channels a
// Rebaser tracks (spec.md §3 "Per-stream Clocks").
type Channel int

const (
	Audio Channel = iota
	Video
)

// clock is the per-channel state: the last rebased timestamp accepted and
// the fractional-millisecond accumulator (spec.md §4.4).
type clock struct {
	set     bool
	prev    float64
	acc     float64
	haveAcc bool
}

// Rebaser converts encoder presentation timestamps, in seconds, into
// integer millisecond deltas suitable for RTMP chunk timestamps. The zero
// value is ready to use; Reset returns it to that state (e.g. on a fresh
// Publish transition).
type Rebaser struct {
	// CompositionOffset is added to presentation-minus-decode before
	// conversion to milliseconds. Defaults to DefaultCompositionOffset
	// when the Rebaser is zero-valued; set explicitly to override.
	CompositionOffset float64

	haveBase bool
	base     float64

	audio clock
	video clock
}

// Reset clears all accumulated state, so the next accepted timestamp on
// either channel becomes the new base (spec.md §4.5 Publish -> Publishing
// "start encoders", and the reverse transition tearing clocks down).
func (r *Rebaser) Reset() {
	r.haveBase = false
	r.base = 0
	r.audio = clock{}
	r.video = clock{}
}

func (r *Rebaser) offset() float64 {
	if r.CompositionOffset != 0 {
		return r.CompositionOffset
	}
	return DefaultCompositionOffset
}

// Accept rebases a presentation timestamp pts (seconds) on channel ch and
// returns the RTMP timestamp delta to emit for this frame. ok is false if
// the frame must be dropped: either it precedes the stream's base
// timestamp, or its rebased value is less than the channel's previous
// rebased value (spec.md §3 invariant, §4.4, §7 "Frame drop"). A frame
// whose rebased value equals the previous one is accepted with delta 0.
func (r *Rebaser) Accept(ch Channel, pts float64) (delta uint32, ok bool) {
	if !r.haveBase {
		r.haveBase = true
		r.base = pts
	}
	rebased := pts - r.base
	if rebased < 0 {
		return 0, false
	}

	c := r.clockFor(ch)
	if !c.set {
		c.set = true
		c.prev = rebased
		c.acc = 0
		c.haveAcc = true
		return 0, true
	}

	deltaMS := (rebased - c.prev) * 1000
	if deltaMS < 0 {
		return 0, false
	}

	acc := c.acc + deltaMS
	send := math.Floor(acc)
	c.acc = acc - send
	c.prev = rebased

	return uint32(send), true
}

func (r *Rebaser) clockFor(ch Channel) *clock {
	if ch == Audio {
		return &r.audio
	}
	return &r.video
}

// PrevRebased returns the last accepted rebased timestamp (seconds) for
// ch, and whether any frame has yet been accepted on that channel.
func (r *Rebaser) PrevRebased(ch Channel) (t float64, ok bool) {
	c := r.clockFor(ch)
	return c.prev, c.set
}

// CompositionTime computes the signed composition-time offset, in
// milliseconds, for a video frame whose decode timestamp dts has already
// been rebased via Accept(Video, dts) and whose presentation timestamp is
// pts (spec.md §4.4 "Composition time"). Both are seconds, pre-rebase.
// It returns 0 when pts equals dts.
func (r *Rebaser) CompositionTime(pts, dts float64) int32 {
	if pts == dts {
		return 0
	}
	presentationRebased := pts - r.base
	prev, _ := r.PrevRebased(Video)
	ms := (presentationRebased - prev + r.offset()) * 1000
	return int32(math.Round(ms))
}
