/*
NAME
  header_test.go

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtmp

import "testing"

// TestBasicHeaderRoundTrip checks spec.md §4.1's three basic header forms
// (1, 2 and 3 bytes, selected by csid range).
func TestBasicHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		typ     chunkHeaderType
		csid    uint32
		wantLen int
	}{
		{"single byte, low csid", hdrFull, 3, 1},
		{"single byte, boundary 63", hdrSameStream, 63, 1},
		{"two byte, boundary 64", hdrTimestampOnly, 64, 2},
		{"two byte, boundary 319", hdrContinuation, 319, 2},
		{"three byte, csid 320", hdrFull, 320, 3},
		{"three byte, large csid", hdrFull, 65599, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := encodeBasicHeader(nil, c.typ, c.csid)
			if len(buf) != c.wantLen {
				t.Fatalf("encoded length = %d, want %d (buf=%v)", len(buf), c.wantLen, buf)
			}
			got, n, err := decodeBasicHeader(buf)
			if err != nil {
				t.Fatalf("decodeBasicHeader: %v", err)
			}
			if n != len(buf) {
				t.Errorf("consumed = %d, want %d", n, len(buf))
			}
			if got.typ != c.typ || got.csid != c.csid {
				t.Errorf("got {%v %d}, want {%v %d}", got.typ, got.csid, c.typ, c.csid)
			}
		})
	}
}

// TestBasicHeaderNeedsMoreBytes checks that a truncated 2- or 3-byte form
// reports ErrNeedMore rather than misparsing.
func TestBasicHeaderNeedsMoreBytes(t *testing.T) {
	full := encodeBasicHeader(nil, hdrFull, 65599)
	for n := 0; n < len(full); n++ {
		_, _, err := decodeBasicHeader(full[:n])
		if err != ErrNeedMore {
			t.Errorf("decodeBasicHeader(full[:%d]) error = %v, want ErrNeedMore", n, err)
		}
	}
}

// TestMsgHeaderSizes checks the per-type message header sizes spec.md
// §4.1 specifies: 11, 7, 3, 0 bytes for types 0-3.
func TestMsgHeaderSizes(t *testing.T) {
	want := [4]int{11, 7, 3, 0}
	for typ, n := range want {
		dst := encodeMsgHeader(nil, chunkHeaderType(typ), msgHeader{length: 10, typeID: 9, streamID: 1}, 1000)
		if len(dst) != n {
			t.Errorf("type %d: encoded %d bytes, want %d", typ, len(dst), n)
		}
	}
}

// TestEncode24RoundTrip checks the 3-byte big-endian helpers used for
// timestamp/delta and length fields.
func TestEncode24RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xff, 0xabcdef, 0xffffff} {
		buf := append24(nil, v)
		if len(buf) != 3 {
			t.Fatalf("append24(%d) produced %d bytes, want 3", v, len(buf))
		}
		if got := decode24(buf); got != v {
			t.Errorf("decode24(append24(%d)) = %d", v, got)
		}
	}
}
