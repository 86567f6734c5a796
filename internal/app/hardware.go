package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/mpu_datalogger/internal/control"
)

// edgeWaiter is the part of gpio.PinIn the button watcher needs.
type edgeWaiter interface {
	WaitForEdge(timeout time.Duration) bool
}

// edgePoll bounds each WaitForEdge so the watcher notices cancellation.
const edgePoll = time.Second

// initHost loads the periph host drivers.
func initHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph host: %w", err)
	}
	return nil
}

// OpenButton configures name as a pulled-up input interrupting on the
// falling edge (button to ground).
func OpenButton(name string) (gpio.PinIn, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("button pin %s not found", name)
	}
	if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("button pin %s: %w", name, err)
	}
	return p, nil
}

// WatchButton reports every edge on pin to arb until ctx ends. It stands in
// for the interrupt handler and must stay limited to Arbiter.Edge.
func WatchButton(ctx context.Context, pin edgeWaiter, b control.Button, arb *control.Arbiter) {
	for ctx.Err() == nil {
		if !pin.WaitForEdge(edgePoll) {
			continue
		}
		if !arb.Edge(b, time.Now()) {
			log.Debugf("buttons: edge on button %s dropped", b)
		}
	}
}
