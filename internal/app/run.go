// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/mpu_datalogger/internal/config"
	"github.com/relabs-tech/mpu_datalogger/internal/console"
	"github.com/relabs-tech/mpu_datalogger/internal/control"
	"github.com/relabs-tech/mpu_datalogger/internal/imu"
	"github.com/relabs-tech/mpu_datalogger/internal/sensors"
	"github.com/relabs-tech/mpu_datalogger/internal/status"
	"github.com/relabs-tech/mpu_datalogger/internal/storage"
	"github.com/relabs-tech/mpu_datalogger/internal/telemetry"
)

// SetLogLevel applies the configured logrus level.
func SetLogLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// RunDatalogger brings up the hardware described by cfg and runs the
// dispatch loop until ctx ends.
func RunDatalogger(ctx context.Context, cfg *config.Config) error {
	log.Println("starting mpu datalogger")
	SetLogLevel(cfg.LogLevel)

	if err := initHost(); err != nil {
		return err
	}

	// --- Sensor ---
	mpu, mpuBus, err := sensors.OpenMPU6050(cfg.I2CBus, cfg.MPUI2CAddr)
	if err != nil {
		return err
	}
	defer mpuBus.Close()

	// --- Display and indicators ---
	var renderer status.Renderer = status.LogRenderer{}
	if cfg.DisplayEnabled {
		oled, dispBus, err := status.OpenOLED(cfg.DisplayI2CBus)
		if err != nil {
			log.Printf("display: disabled: %v", err)
		} else {
			defer dispBus.Close()
			renderer = oled
		}
	}
	var indicators status.Indicators = status.NoLEDs{}
	if cfg.LEDErrorPin != "" {
		leds, err := status.OpenLEDs(cfg.LEDErrorPin, cfg.LEDOKPin)
		if err != nil {
			return err
		}
		indicators = leds
	}
	pres := status.NewPresenter(renderer, indicators)

	// --- Command stream and console ---
	stream := console.NewStream()
	var out io.Writer = os.Stdout
	var in io.Reader = os.Stdin
	if cfg.SerialPort != "" {
		port, err := console.OpenSerial(cfg.SerialPort, uint(cfg.SerialBaudRate))
		if err != nil {
			return err
		}
		defer port.Close()
		in, out = port, port
	}
	go func() {
		if err := stream.Pump(ctx, in); err != nil {
			log.Printf("console: input stopped: %v", err)
		}
	}()

	// --- Control ---
	guard := &control.Guard{}
	arb := control.NewArbiter(guard, time.Duration(cfg.DebounceMS)*time.Millisecond)
	card := storage.NewCard(cfg.StorageMountPoint, cfg.StorageDevice, cfg.StorageFSType)
	ctrl := NewController(card, mpu, pres, arb, guard, stream, Options{
		LogFileName:      cfg.LogFileName,
		StrictMountState: cfg.StrictMountState,
		LoopInterval:     time.Duration(cfg.LoopIntervalMS) * time.Millisecond,
		SampleInterval:   time.Duration(cfg.SampleIntervalMS) * time.Millisecond,
		Console:          out,
	})

	for b, name := range map[control.Button]string{control.ButtonA: cfg.ButtonAPin, control.ButtonB: cfg.ButtonBPin} {
		if name == "" {
			continue
		}
		pin, err := OpenButton(name)
		if err != nil {
			return err
		}
		go WatchButton(ctx, pin, b, arb)
		log.Printf("buttons: watching %s", name)
	}

	// --- Remote surfaces ---
	if cfg.MQTTBroker != "" {
		pub, err := telemetry.Connect(telemetry.Options{
			Broker:        cfg.MQTTBroker,
			ClientID:      cfg.MQTTClientID,
			TopicStatus:   cfg.TopicStatus,
			TopicSamples:  cfg.TopicSamples,
			TopicCommands: cfg.TopicCommands,
		})
		if err != nil {
			log.Printf("mqtt: disabled: %v", err)
		} else {
			defer pub.Close()
			pres.AddSink(pub)
			ctrl.AddSampleSink(pub)
			if err := pub.SubscribeCommands(stream.Feed); err != nil {
				log.Printf("mqtt: remote commands disabled: %v", err)
			}
		}
	}
	if cfg.WebServerPort != 0 {
		web := NewWebServer(pres, stream.Feed)
		pres.AddSink(web)
		go func() {
			if err := web.ListenAndServe(ctx, cfg.WebServerPort); err != nil {
				log.Printf("web: stopped: %v", err)
			}
		}()
	}

	ctrl.Boot(mpu)
	return ctrl.Run(ctx)
}

// Probe resets the sensor and prints one sample record to w without
// touching storage. With registers set it also dumps the register map.
func Probe(cfg *config.Config, w io.Writer, registers bool) error {
	mpu, bus, err := sensors.OpenMPU6050(cfg.I2CBus, cfg.MPUI2CAddr)
	if err != nil {
		return err
	}
	defer bus.Close()

	id, err := mpu.WhoAmI()
	if err != nil {
		return err
	}
	if id != sensors.WhoAmIValue {
		log.Warnf("mpu6050: unexpected %s 0x%02X", sensors.RegisterName(sensors.RegWhoAmI), id)
	}
	if err := mpu.Reset(); err != nil {
		return err
	}
	raw, err := mpu.ReadRaw()
	if err != nil {
		return err
	}
	fmt.Fprint(w, imu.CSVHeader)
	fmt.Fprint(w, imu.NewSample(1, raw).CSV())

	if registers {
		return dumpRegisters(mpu, w)
	}
	return nil
}

// dumpRegisters prints the first byte of every known register.
func dumpRegisters(mpu *sensors.MPU6050, w io.Writer) error {
	fmt.Fprintf(w, "\n%-6s %-14s %-3s %-6s %s\n", "ADDR", "NAME", "RW", "VALUE", "DESCRIPTION")
	for _, r := range sensors.Registers() {
		b, err := mpu.ReadRegisters(r.Address, 1)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "0x%02X   %-14s %-3s 0x%02X   %s\n", r.Address, r.Name, r.Access, b[0], r.Description)
	}
	return nil
}
