// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pcitest

import (
	"errors"
	"testing"

	"github.com/GermanBionicSystems/fitpc2tz/pci"
	"github.com/google/go-cmp/cmp"
)

func TestRecord_Playback(t *testing.T) {
	rec := &Record{Dev: &Playback{
		Ops: []IO{
			{Write: true, Offset: 0xd4, Value: 0xffffffff},
			{Offset: 0xd4, Value: 0x1234},
		},
	}}
	if err := rec.WriteConfig32(0xd4, 0xffffffff); err != nil {
		t.Fatal(err)
	}
	v, err := rec.ReadConfig32(0xd4)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x1234 {
		t.Fatalf("got 0x%x", v)
	}
	want := []IO{
		{Write: true, Offset: 0xd4, Value: 0xffffffff},
		{Offset: 0xd4, Value: 0x1234},
	}
	if diff := cmp.Diff(rec.Ops, want); diff != "" {
		t.Fatalf("ops mismatch (-got +want):\n%s", diff)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRecord_regs(t *testing.T) {
	rec := NewRecord(map[uint16]uint32{0xd4: 0xb2a1})
	if v, _ := rec.ReadConfig32(0xd4); v != 0xb2a1 {
		t.Fatalf("got 0x%x", v)
	}
	if err := rec.WriteConfig32(0xd0, 0xe004b000); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rec.Regs(), map[uint16]uint32{0xd0: 0xe004b000, 0xd4: 0xb2a1}); diff != "" {
		t.Fatalf("regs mismatch (-got +want):\n%s", diff)
	}
	if err := rec.WriteConfig32(0xd1, 0); !errors.Is(err, pci.ErrOffset) {
		t.Fatalf("expected ErrOffset, got %v", err)
	}
}

func TestPlayback_mismatch(t *testing.T) {
	p := &Playback{Ops: []IO{{Write: true, Offset: 0xd0, Value: 1}}, DontPanic: true}
	if err := p.WriteConfig32(0xd0, 2); err == nil {
		t.Fatal("expected mismatch")
	}
	if err := p.Close(); err == nil {
		t.Fatal("expected leftover ops")
	}
	p = &Playback{}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	_, _ = p.ReadConfig32(0xd4)
}

func TestPlayback_err(t *testing.T) {
	boom := errors.New("boom")
	p := &Playback{Ops: []IO{{Offset: 0xd4}}, Err: boom}
	if _, err := p.ReadConfig32(0xd4); err != boom {
		t.Fatalf("got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBus(t *testing.T) {
	id := pci.ID{Vendor: pci.VendorIntel, Device: 0x8100}
	b := &Bus{ID: id}
	if _, err := b.Find(id); !errors.Is(err, pci.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	b.Dev = &Record{}
	if d, err := b.Find(id); err != nil || d != b.Dev {
		t.Fatalf("%v %v", d, err)
	}
	if b.Finds != 2 {
		t.Fatal(b.Finds)
	}
}
