/*
NAME
  rebase_test.go

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rebase

import "testing"

// TestMonotonicity checks spec.md §8 invariant 4: emitted deltas are
// non-negative and their sum tracks true elapsed time within 1ms.
func TestMonotonicity(t *testing.T) {
	var r Rebaser
	pts := []float64{10.0, 10.033, 10.066, 10.1, 10.133}

	var sum uint32
	for i, p := range pts {
		delta, ok := r.Accept(Video, p)
		if !ok {
			t.Fatalf("frame %d unexpectedly dropped", i)
		}
		sum += delta
	}

	last := pts[len(pts)-1] - pts[0]
	want := uint32(last * 1000)
	if diff := int(sum) - int(want); diff < -1 || diff > 1 {
		t.Errorf("accumulated delta = %d, want within 1ms of %d", sum, want)
	}
}

// TestFirstFrameBecomesBase checks that the first accepted timestamp
// becomes time zero and does not itself emit a delta.
func TestFirstFrameBecomesBase(t *testing.T) {
	var r Rebaser
	delta, ok := r.Accept(Video, 5.0)
	if !ok || delta != 0 {
		t.Fatalf("first frame: got (%d, %v), want (0, true)", delta, ok)
	}
}

// TestDropBeforeBase checks spec.md §8 invariant 5: a frame preceding the
// base timestamp is dropped without updating channel state.
func TestDropBeforeBase(t *testing.T) {
	var r Rebaser
	r.Accept(Video, 10.0) // Establishes base = 10.0.
	_, ok := r.Accept(Video, 9.0)
	if ok {
		t.Error("frame preceding base timestamp was not dropped")
	}
}

// TestDropDecreasing checks that a frame whose rebased timestamp is less
// than the channel's previous value is dropped.
func TestDropDecreasing(t *testing.T) {
	var r Rebaser
	r.Accept(Video, 10.0)
	r.Accept(Video, 10.1)
	before, _ := r.PrevRebased(Video)

	_, ok := r.Accept(Video, 10.05)
	if ok {
		t.Error("decreasing frame was not dropped")
	}
	after, _ := r.PrevRebased(Video)
	if before != after {
		t.Errorf("prev_rebased changed on a dropped frame: %v -> %v", before, after)
	}
}

// TestChannelsIndependent checks that audio and video clocks advance
// independently of one another.
func TestChannelsIndependent(t *testing.T) {
	var r Rebaser
	r.Accept(Video, 10.0)
	r.Accept(Audio, 10.0)
	r.Accept(Video, 10.5)

	_, audioOK := r.PrevRebased(Audio)
	videoPrev, _ := r.PrevRebased(Video)
	if !audioOK {
		t.Fatal("audio channel has no recorded timestamp")
	}
	if videoPrev != 0.5 {
		t.Errorf("video prev = %v, want 0.5", videoPrev)
	}
}

// TestReset checks that Reset clears base and per-channel state so the
// next accepted timestamp becomes a new origin.
func TestReset(t *testing.T) {
	var r Rebaser
	r.Accept(Video, 10.0)
	r.Accept(Video, 10.5)
	r.Reset()

	delta, ok := r.Accept(Video, 100.0)
	if !ok || delta != 0 {
		t.Errorf("after reset, first frame = (%d, %v), want (0, true)", delta, ok)
	}
}

// TestCompositionTimeDefault checks spec.md §9: the default offset is 3/30s,
// added to pts minus the rebased dts when the two differ.
func TestCompositionTimeDefault(t *testing.T) {
	var r Rebaser
	r.Accept(Video, 10.0) // base = 10.0, video.prev = 0.
	ct := r.CompositionTime(10.04, 10.0)
	want := int32(40 + DefaultCompositionOffset*1000)
	if ct != want {
		t.Errorf("composition time = %d, want %d", ct, want)
	}
}

// TestCompositionTimeZeroWhenPTSEqualsDTS checks that no composition
// offset is emitted when presentation and decode timestamps coincide.
func TestCompositionTimeZeroWhenPTSEqualsDTS(t *testing.T) {
	var r Rebaser
	r.Accept(Video, 10.0)
	if ct := r.CompositionTime(10.0, 10.0); ct != 0 {
		t.Errorf("composition time = %d, want 0", ct)
	}
}
