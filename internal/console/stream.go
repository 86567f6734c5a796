// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package console carries the command character stream and the text
// console the operator reads replies on.
package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Stream holds the single pending command character. Producers may feed
// from any goroutine; a character fed before the main loop consumed the
// previous one replaces it.
type Stream struct {
	mu         sync.Mutex
	pending    byte
	ok         bool
	overwrites atomic.Uint32
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Feed makes b the pending character. It always accepts b.
func (s *Stream) Feed(b byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ok {
		s.overwrites.Add(1)
		log.Debugf("console: pending %q replaced by %q", s.pending, b)
	}
	s.pending, s.ok = b, true
	return true
}

// FeedString feeds every byte of str; only the last one stays pending.
func (s *Stream) FeedString(str string) {
	for i := 0; i < len(str); i++ {
		s.Feed(str[i])
	}
}

// Next takes the pending character, if any.
func (s *Stream) Next() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.pending, s.ok
	s.pending, s.ok = 0, false
	return b, ok
}

// Drops returns how many pending characters were replaced before the loop
// consumed them.
func (s *Stream) Drops() uint32 { return s.overwrites.Load() }

// Pump copies bytes from r into the stream until r fails or ctx ends.
// Line terminators are skipped so that terminal input maps 1:1 to commands.
func (s *Stream) Pump(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("console: input closed")
				return nil
			}
			return err
		}
		if b == '\r' || b == '\n' {
			continue
		}
		s.Feed(b)
	}
}
