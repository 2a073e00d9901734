// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pcitest is meant to be used to test drivers over a fake PCI
// configuration space.
package pcitest

import (
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/fitpc2tz/pci"
)

// IO registers one configuration space access.
type IO struct {
	Write  bool
	Offset uint16
	Value  uint32
}

func (i IO) String() string {
	if i.Write {
		return fmt.Sprintf("W[0x%02x]=0x%08x", i.Offset, i.Value)
	}
	return fmt.Sprintf("R[0x%02x]=0x%08x", i.Offset, i.Value)
}

// Record is a pci.Dev logging every config access to Ops.
//
// With a nil Dev it acts as a register file: a read returns the last value
// written at that offset, or the initial value given to NewRecord. Regs shows
// the state the registers were left in.
type Record struct {
	sync.Mutex
	Dev  pci.Dev
	Ops  []IO
	regs map[uint16]uint32
}

// NewRecord returns a Record backed by the initial register values.
func NewRecord(regs map[uint16]uint32) *Record {
	r := &Record{regs: map[uint16]uint32{}}
	for k, v := range regs {
		r.regs[k] = v
	}
	return r
}

func (r *Record) String() string {
	return "record"
}

// ReadConfig32 implements pci.Dev.
func (r *Record) ReadConfig32(off uint16) (uint32, error) {
	r.Lock()
	defer r.Unlock()
	var v uint32
	if r.Dev != nil {
		var err error
		if v, err = r.Dev.ReadConfig32(off); err != nil {
			return 0, err
		}
	} else {
		if err := pci.CheckOffset(off); err != nil {
			return 0, err
		}
		v = r.regs[off]
	}
	r.Ops = append(r.Ops, IO{Offset: off, Value: v})
	return v, nil
}

// WriteConfig32 implements pci.Dev.
func (r *Record) WriteConfig32(off uint16, v uint32) error {
	r.Lock()
	defer r.Unlock()
	if r.Dev != nil {
		if err := r.Dev.WriteConfig32(off, v); err != nil {
			return err
		}
	} else {
		if err := pci.CheckOffset(off); err != nil {
			return err
		}
		if r.regs == nil {
			r.regs = map[uint16]uint32{}
		}
		r.regs[off] = v
	}
	r.Ops = append(r.Ops, IO{Write: true, Offset: off, Value: v})
	return nil
}

// Regs returns a copy of the register values written so far.
func (r *Record) Regs() map[uint16]uint32 {
	r.Lock()
	defer r.Unlock()
	out := make(map[uint16]uint32, len(r.regs))
	for k, v := range r.regs {
		out[k] = v
	}
	return out
}

// Close implements pci.Dev.
func (r *Record) Close() error {
	r.Lock()
	defer r.Unlock()
	if r.Dev != nil {
		return r.Dev.Close()
	}
	return nil
}

// Playback is a pci.Dev checking each config access against Ops, in order.
//
// Reads return the scripted value. An access that doesn't match the next
// entry panics, or returns an error when DontPanic is set. Close fails when
// entries are left.
type Playback struct {
	sync.Mutex
	Ops       []IO
	Count     int
	DontPanic bool
	// Err is returned by the access at index ErrAt when set.
	Err   error
	ErrAt int
}

func (p *Playback) String() string {
	return "playback"
}

// Close implements pci.Dev.
//
// It fails if not all the ops were consumed.
func (p *Playback) Close() error {
	p.Lock()
	defer p.Unlock()
	if len(p.Ops) != p.Count {
		return errorf(p.DontPanic, "pcitest: expected playback to be empty: did %d out of %d ops", p.Count, len(p.Ops))
	}
	return nil
}

// ReadConfig32 implements pci.Dev.
func (p *Playback) ReadConfig32(off uint16) (uint32, error) {
	p.Lock()
	defer p.Unlock()
	op, err := p.next(IO{Offset: off})
	if err != nil {
		return 0, err
	}
	return op.Value, nil
}

// WriteConfig32 implements pci.Dev.
func (p *Playback) WriteConfig32(off uint16, v uint32) error {
	p.Lock()
	defer p.Unlock()
	_, err := p.next(IO{Write: true, Offset: off, Value: v})
	return err
}

func (p *Playback) next(got IO) (IO, error) {
	if p.Count >= len(p.Ops) {
		return IO{}, errorf(p.DontPanic, "pcitest: unexpected %s (op #%d)", got, p.Count)
	}
	if p.Err != nil && p.ErrAt == p.Count {
		p.Count++
		return IO{}, p.Err
	}
	want := p.Ops[p.Count]
	if want.Write != got.Write || want.Offset != got.Offset || (got.Write && want.Value != got.Value) {
		return IO{}, errorf(p.DontPanic, "pcitest: unexpected %s; expected %s (op #%d)", got, want, p.Count)
	}
	p.Count++
	return want, nil
}

// Bus implements pci.Bus and returns Dev when looking up ID.
//
// A nil Dev means the device is absent.
type Bus struct {
	sync.Mutex
	ID    pci.ID
	Dev   pci.Dev
	Finds int
}

// Find implements pci.Bus.
func (b *Bus) Find(id pci.ID) (pci.Dev, error) {
	b.Lock()
	defer b.Unlock()
	b.Finds++
	if b.Dev == nil || id != b.ID {
		return nil, fmt.Errorf("%w: %s", pci.ErrNotFound, id)
	}
	return b.Dev, nil
}

func errorf(dontPanic bool, format string, a ...interface{}) error {
	err := fmt.Errorf(format, a...)
	if !dontPanic {
		panic(err)
	}
	return err
}

var _ pci.Dev = &Record{}
var _ pci.Dev = &Playback{}
var _ pci.Bus = &Bus{}
