// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package status renders operation progress and outcomes on the display,
// the indicator LEDs, and any attached remote sinks.
package status

import (
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/mpu_datalogger/internal/fault"
)

const (
	completedText  = "Completed!"
	failureText    = "Operation failed"
	unexpectedText = "Unexpected error"
)

// Renderer paints a whole frame on the display in one send.
type Renderer interface {
	Render(f Frame) error
}

// Indicators drives the status LEDs.
type Indicators interface {
	Set(l Lights) error
}

// Sink receives every status event, e.g. for MQTT or websocket fan-out.
type Sink interface {
	PublishStatus(ev Event)
}

// Event is the remote representation of one render.
type Event struct {
	Op      string    `json:"op"`
	Outcome string    `json:"outcome"`
	Lines   []string  `json:"lines"`
	Fault   string    `json:"fault,omitempty"`
	Time    time.Time `json:"time"`
}

// Presenter composes frames and indicator codes for each outcome.
type Presenter struct {
	r   Renderer
	ind Indicators
	now func() time.Time

	mu    sync.RWMutex
	sinks []Sink
	last  Event
	have  bool
}

// NewPresenter returns a presenter drawing on r and ind.
func NewPresenter(r Renderer, ind Indicators) *Presenter {
	return &Presenter{r: r, ind: ind, now: time.Now}
}

// AddSink attaches a remote status sink.
func (p *Presenter) AddSink(s Sink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

// Last returns the most recent event.
func (p *Presenter) Last() (Event, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.have
}

// Progress shows op as running. Extra lines are drawn below the label.
func (p *Presenter) Progress(op string, extra ...string) {
	p.show(op, InProgress, NewFrame(append([]string{op}, extra...)...), fault.None)
}

// Done shows op completed with the generic completion marker.
func (p *Presenter) Done(op string) {
	p.show(op, Success, NewFrame(op, completedText), fault.None)
}

// Success shows a command-specific summary for op.
func (p *Presenter) Success(op string, lines ...string) {
	p.show(op, Success, NewFrame(lines...), fault.None)
}

// DeviceError shows the generic failure layout for a collaborator error.
func (p *Presenter) DeviceError(op string, err error) {
	k := fault.Of(err)
	p.show(op, DeviceError, NewFrame(op, describe(k), failureText), k)
}

// Unexpected shows a failure outside the device-error taxonomy.
func (p *Presenter) Unexpected(op string, err error) {
	log.WithError(err).Errorf("status: %s: unexpected error", op)
	p.show(op, UnexpectedError, NewFrame(op, "Error", unexpectedText), fault.None)
}

// Screen draws an informational frame with the given indicator outcome.
func (p *Presenter) Screen(op string, o Outcome, lines ...string) {
	p.show(op, o, NewFrame(lines...), fault.None)
}

// Indicate sets the indicators for o and notifies sinks, leaving the
// display as it is.
func (p *Presenter) Indicate(op string, o Outcome) {
	p.signal(op, o, nil, fault.None)
}

func (p *Presenter) show(op string, o Outcome, f Frame, k fault.Kind) {
	if err := p.r.Render(f); err != nil {
		log.Printf("status: render %q: %v", op, err)
	}
	p.signal(op, o, f.Lines, k)
}

func (p *Presenter) signal(op string, o Outcome, lines []string, k fault.Kind) {
	if err := p.ind.Set(LightsFor(o)); err != nil {
		log.Printf("status: indicators: %v", err)
	}

	ev := Event{
		Op:      op,
		Outcome: o.String(),
		Lines:   lines,
		Fault:   string(k),
		Time:    p.now(),
	}
	p.mu.Lock()
	p.last = ev
	p.have = true
	sinks := append([]Sink(nil), p.sinks...)
	p.mu.Unlock()

	for _, s := range sinks {
		s.PublishStatus(ev)
	}
}

// describe turns a fault kind into a short display line.
func describe(k fault.Kind) string {
	if k == fault.None {
		return "Error"
	}
	s := strings.ReplaceAll(string(k), "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}
