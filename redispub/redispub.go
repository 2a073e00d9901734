// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package redispub publishes thermal zone readings into a redis hash.
//
// Each zone gets two fields, "<zone>.temp.units.C" and "<zone>.trip.units.C".
// An unavailable zone has its temperature set to "unavailable".
package redispub

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/GermanBionicSystems/fitpc2tz/thermal"
	redigo "github.com/garyburd/redigo/redis"
	"github.com/jpillora/backoff"
)

// Unavailable is stored in place of a temperature that could not be read.
const Unavailable = "unavailable"

// ErrRetryLater is returned while waiting to reconnect to the server.
var ErrRetryLater = errors.New("redispub: waiting to reconnect")

// Publisher writes readings to Hash on the redis server at Addr.
//
// The connection is opened lazily and reopened after a failure. Reconnect
// attempts are spaced with an exponential backoff. The zero value with Addr
// and Hash set is ready to use.
type Publisher struct {
	Addr string
	Hash string

	mu      sync.Mutex
	conn    redigo.Conn
	b       *backoff.Backoff
	retryAt time.Time
	dial    func(network, addr string) (redigo.Conn, error)
}

// New returns a Publisher for addr. It does not connect.
func New(addr, hash string) *Publisher {
	return &Publisher{Addr: addr, Hash: hash}
}

// Fields returns the hash fields and values for readings, in order.
func Fields(readings []thermal.Reading) []string {
	out := make([]string, 0, 4*len(readings))
	for _, r := range readings {
		if r.Zone == nil {
			continue
		}
		name := r.Zone.Type
		v := Unavailable
		if r.Err == nil {
			v = celsius(r.Temperature.Celsius())
		}
		out = append(out, name+".temp.units.C", v)
		if r.Zone.Trips > 0 && r.Trip != 0 {
			out = append(out, name+".trip.units.C", celsius(r.Trip.Celsius()))
		}
	}
	return out
}

func celsius(c float64) string {
	return strconv.Itoa(int(math.Round(c)))
}

// Publish writes readings with a single HMSET.
func (p *Publisher) Publish(readings []thermal.Reading) error {
	fields := Fields(readings)
	if len(fields) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return err
	}
	args := redigo.Args{}.Add(p.Hash)
	for _, f := range fields {
		args = args.Add(f)
	}
	if _, err := p.conn.Do("HMSET", args...); err != nil {
		p.drop()
		return fmt.Errorf("redispub: %s: %w", p.Addr, err)
	}
	return nil
}

func (p *Publisher) connect() error {
	if p.conn != nil {
		return nil
	}
	if p.b == nil {
		p.b = &backoff.Backoff{
			Min:    1 * time.Second,
			Max:    60 * time.Second,
			Factor: 2,
			Jitter: false,
		}
	}
	if now().Before(p.retryAt) {
		return ErrRetryLater
	}
	var c redigo.Conn
	var err error
	if p.dial != nil {
		c, err = p.dial("tcp", p.Addr)
	} else {
		c, err = redigo.Dial("tcp", p.Addr)
	}
	if err != nil {
		p.retryAt = now().Add(p.b.Duration())
		return fmt.Errorf("redispub: %s: %w", p.Addr, err)
	}
	p.b.Reset()
	p.conn = c
	return nil
}

func (p *Publisher) drop() {
	_ = p.conn.Close()
	p.conn = nil
	p.retryAt = now().Add(p.b.Duration())
}

// Close closes the connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Publisher) String() string {
	return fmt.Sprintf("redis(%s %s)", p.Addr, p.Hash)
}

var now = time.Now
