// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ltf8

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	vals := []int64{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 1 << 40, 1 << 50, -1}
	for _, v := range vals {
		buf := make([]byte, Len(v))
		n := Encode(buf, v)
		if n != len(buf) {
			t.Fatalf("Encode(%d): wrote %d, want %d", v, n, len(buf))
		}
		got, decN, ok := Decode(buf)
		if !ok || decN != n || got != v {
			t.Fatalf("Decode(Encode(%d)) = %d, %d, %v", v, got, decN, ok)
		}
		got2, err := ReadFrom(bytes.NewReader(buf))
		if err != nil || got2 != v {
			t.Fatalf("ReadFrom(Encode(%d)) = %d, %v", v, got2, err)
		}
	}
}
