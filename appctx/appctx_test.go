// Copyright ©2020 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package appctx

import (
	"testing"
	"time"

	"github.com/genomeview/aligncore/annotation"
)

func TestContextAnnotationsSwap(t *testing.T) {
	c := New()
	if c.Annotations().Genes != nil {
		t.Fatalf("expected empty initial snapshot")
	}
	genes := &annotation.GeneCache{Genes: []annotation.Gene{{Name: "FOO"}}}
	c.SetAnnotations(&Annotations{Genes: genes})
	if c.Annotations().Genes != genes {
		t.Fatalf("SetAnnotations did not take effect")
	}
}

func TestContextRedrawMonotonic(t *testing.T) {
	c := New()
	if c.Tick() != 0 {
		t.Fatalf("got initial tick %d, want 0", c.Tick())
	}
	t1 := c.Redraw()
	t2 := c.Redraw()
	if t1 != 1 || t2 != 2 {
		t.Fatalf("got ticks %d, %d, want 1, 2", t1, t2)
	}
	if c.Tick() != 2 {
		t.Fatalf("got tick %d, want 2", c.Tick())
	}
}

func TestContextSubscribe(t *testing.T) {
	c := New()
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	c.Redraw()
	select {
	case tick := <-ch:
		if tick != 1 {
			t.Fatalf("got tick %d, want 1", tick)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for redraw notification")
	}
}

func TestContextUnsubscribeStopsNotifications(t *testing.T) {
	c := New()
	ch, unsubscribe := c.Subscribe()
	unsubscribe()
	c.Redraw()
	select {
	case tick := <-ch:
		t.Fatalf("got unexpected tick %d after unsubscribe", tick)
	case <-time.After(50 * time.Millisecond):
	}
}
