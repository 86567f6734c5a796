// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/mpu_datalogger/internal/console"
	"github.com/relabs-tech/mpu_datalogger/internal/control"
	"github.com/relabs-tech/mpu_datalogger/internal/fault"
	"github.com/relabs-tech/mpu_datalogger/internal/imu"
	"github.com/relabs-tech/mpu_datalogger/internal/sensors"
	"github.com/relabs-tech/mpu_datalogger/internal/status"
	"github.com/relabs-tech/mpu_datalogger/internal/storage"
)

// Display labels shown on the first line while an operation runs.
const (
	labelMount     = "Mounting SD..."
	labelUnmount   = "Unmounting SD..."
	labelList      = "Listing files..."
	labelReadLog   = "Reading file"
	labelFreeSpace = "Getting space"
	labelCapture   = "Capturing data"
	labelFormat    = "Formatting SD"
	labelHelp      = "Help"
	labelBoot      = "Booting"
)

// Storage is the card the dispatcher drives.
type Storage interface {
	storage.Opener
	Mount() error
	Unmount() error
	List(w io.Writer) error
	FreeSpace() (uint64, error)
	Format() error
	ReadFile(name string, w io.Writer) error
}

// SampleSink receives every captured sample.
type SampleSink interface {
	PublishSample(s imu.Sample)
}

// Options tunes the controller.
type Options struct {
	LogFileName      string
	StrictMountState bool
	LoopInterval     time.Duration
	SampleInterval   time.Duration
	Console          io.Writer
}

// Controller is the command dispatcher. Run owns the card, the sensor and
// the display; nothing else may call into them while it runs.
type Controller struct {
	card    Storage
	sensor  sensors.RawReader
	pres    *status.Presenter
	guard   *control.Guard
	arbiter *control.Arbiter
	stream  control.CharSource
	out     io.Writer
	sinks   []SampleSink

	logName string
	strict  bool
	tick    time.Duration
	pause   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error

	mounted     atomic.Bool
	lastFault   fault.Kind
	lastCapture CaptureResult
}

// NewController wires a dispatcher. stream may be nil.
func NewController(card Storage, sensor sensors.RawReader, pres *status.Presenter, arb *control.Arbiter, guard *control.Guard, stream control.CharSource, o Options) *Controller {
	if o.LogFileName == "" {
		o.LogFileName = "mpu_data1.csv"
	}
	if o.LoopInterval <= 0 {
		o.LoopInterval = 500 * time.Millisecond
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = 100 * time.Millisecond
	}
	if o.Console == nil {
		o.Console = io.Discard
	}
	return &Controller{
		card:    card,
		sensor:  sensor,
		pres:    pres,
		guard:   guard,
		arbiter: arb,
		stream:  stream,
		out:     o.Console,
		logName: o.LogFileName,
		strict:  o.StrictMountState,
		tick:    o.LoopInterval,
		pause:   o.SampleInterval,
		sleep:   sleepCtx,
	}
}

// AddSampleSink attaches a consumer for captured samples.
func (c *Controller) AddSampleSink(s SampleSink) {
	c.sinks = append(c.sinks, s)
}

// Mounted reports the controller's view of the card.
func (c *Controller) Mounted() bool { return c.mounted.Load() }

// LastFault returns the fault kind of the most recent device error, or None
// once a later command succeeded or failed unexpectedly.
func (c *Controller) LastFault() fault.Kind { return c.lastFault }

// LastCapture returns the result of the most recent capture.
func (c *Controller) LastCapture() CaptureResult { return c.lastCapture }

// Run dispatches at most one command per tick until ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	log.Printf("controller: loop started, tick %v", c.tick)
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("controller: shutting down")
			return nil
		case <-ticker.C:
		}
		c.Step(ctx)
	}
}

// Step polls the arbiter once and dispatches the resulting command.
func (c *Controller) Step(ctx context.Context) control.Command {
	cmd := c.arbiter.Next(c.Mounted(), c.stream)
	if cmd != control.None {
		c.Dispatch(ctx, cmd)
	}
	return cmd
}

// operation describes one device sub-operation and its feedback.
type operation struct {
	label    string
	progress []string
	guarded  bool
	quiet    bool // indicators only while running, display untouched
	intro    string
	run      func(ctx context.Context) ([]string, error)
}

// Dispatch runs cmd through the three-phase feedback template.
func (c *Controller) Dispatch(ctx context.Context, cmd control.Command) {
	log.Debugf("controller: dispatch %s", cmd)
	switch cmd {
	case control.Mount:
		c.exec(ctx, operation{label: labelMount, guarded: true, intro: "Mounting the SD card...", run: c.mount})
	case control.Unmount:
		c.exec(ctx, operation{label: labelUnmount, guarded: true, intro: "Unmounting the SD card. Please wait...", run: c.unmount})
	case control.List:
		c.exec(ctx, operation{label: labelList, guarded: true, intro: "Listing files on the SD card.", run: c.list})
	case control.ReadLog:
		c.exec(ctx, operation{label: labelReadLog, quiet: true, intro: "Log file content:", run: c.readLog})
	case control.FreeSpace:
		c.exec(ctx, operation{label: labelFreeSpace, guarded: true, intro: "Getting free space on the SD card.", run: c.freeSpace})
	case control.Capture:
		c.exec(ctx, operation{
			label:    labelCapture,
			progress: []string{"Do not disconnect", "Please wait..."},
			guarded:  true,
			intro:    "Capturing MPU sensor data. Please wait...",
			run:      c.capture,
		})
	case control.Format:
		c.exec(ctx, operation{label: labelFormat, guarded: true, intro: "SD format started. Please wait...", run: c.format})
	case control.Help:
		c.help()
	default:
		log.Debugf("controller: ignoring command %s", cmd)
	}
}

func (c *Controller) exec(ctx context.Context, op operation) {
	if op.guarded {
		if !c.guard.Acquire() {
			log.Warnf("controller: %s rejected, operation in progress", op.label)
			return
		}
		defer c.guard.Release()
	}

	fmt.Fprintf(c.out, "\n%s\n", op.intro)
	if op.quiet {
		c.pres.Indicate(op.label, status.InProgress)
	} else {
		c.pres.Progress(op.label, op.progress...)
	}

	summary, err := c.invoke(ctx, op)
	switch {
	case err == nil:
		c.lastFault = fault.None
		if summary == nil {
			c.pres.Done(op.label)
		} else {
			c.pres.Success(op.label, summary...)
		}
		log.Infof("controller: %s completed", op.label)
	case fault.IsDevice(err):
		c.lastFault = fault.Of(err)
		log.WithError(err).Errorf("controller: %s failed", op.label)
		fmt.Fprintf(c.out, "[ERROR] %v\n", err)
		c.pres.DeviceError(op.label, err)
	default:
		c.lastFault = fault.None
		fmt.Fprintf(c.out, "[ERROR] unexpected: %v\n", err)
		c.pres.Unexpected(op.label, err)
	}
	fmt.Fprint(c.out, console.Prompt)
}

// invoke runs op, turning a panic in a collaborator into an error.
func (c *Controller) invoke(ctx context.Context, op operation) (summary []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", op.label, r)
		}
	}()
	return op.run(ctx)
}

func (c *Controller) mount(context.Context) ([]string, error) {
	err := c.card.Mount()
	if err == nil || !c.strict {
		c.mounted.Store(true)
	}
	if err == nil {
		fmt.Fprint(c.out, "SD card mounted.\n")
	}
	return nil, err
}

func (c *Controller) unmount(context.Context) ([]string, error) {
	err := c.card.Unmount()
	if err == nil || !c.strict {
		c.mounted.Store(false)
	}
	if err == nil {
		fmt.Fprint(c.out, "SD card unmounted. It can be removed.\n")
	}
	return nil, err
}

func (c *Controller) list(context.Context) ([]string, error) {
	if err := c.card.List(c.out); err != nil {
		return nil, err
	}
	fmt.Fprint(c.out, "\nListing complete.\n")
	return nil, nil
}

func (c *Controller) readLog(context.Context) ([]string, error) {
	if err := c.card.ReadFile(c.logName, c.out); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.out, "\nEnd of %s.\n", c.logName)
	return nil, nil
}

func (c *Controller) freeSpace(context.Context) ([]string, error) {
	kib, err := c.card.FreeSpace()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.out, "%d KiB free.\n\nFree space obtained.\n", kib)
	return []string{"Free space", fmt.Sprintf("%d KiB", kib), "available"}, nil
}

func (c *Controller) format(context.Context) ([]string, error) {
	if err := c.card.Format(); err != nil {
		return nil, err
	}
	fmt.Fprint(c.out, "\nFormat complete.\n")
	return nil, nil
}

// help prints the command alphabet and returns the display to the waiting
// screen. It never holds the guard.
func (c *Controller) help() {
	c.guard.Release()
	fmt.Fprint(c.out, console.ClearScreen)
	console.WriteHelp(c.out)
	c.pres.Screen(labelHelp, status.Success, waitingFrame...)
}

var waitingFrame = []string{"Waiting for", "command..."}

// Resetter is a sensor that supports the power-on reset handshake.
type Resetter interface {
	Reset() error
}

// Boot runs the start-up sequence: both indicators while bringing up,
// help on the console, sensor reset, then the ready indicator. A failed
// reset is shown and recorded like any device error; the loop still starts.
func (c *Controller) Boot(r Resetter) {
	c.pres.Progress(labelBoot)
	fmt.Fprint(c.out, console.ClearScreen)
	console.WriteHelp(c.out)
	c.pres.Screen(labelBoot, status.InProgress, waitingFrame...)

	if r != nil {
		if err := r.Reset(); err != nil {
			c.lastFault = fault.Of(err)
			log.WithError(err).Errorf("controller: sensor reset failed")
			fmt.Fprintf(c.out, "[ERROR] %v\n", err)
			c.pres.DeviceError(labelBoot, err)
			return
		}
	}
	c.pres.Screen(labelBoot, status.Success, waitingFrame...)
	log.Printf("controller: ready")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
