package status

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// LEDs drives the error and ok indicators on two GPIO outputs.
type LEDs struct {
	errPin gpio.PinOut
	okPin  gpio.PinOut
}

// OpenLEDs looks up both pins by name and switches them off.
func OpenLEDs(errName, okName string) (*LEDs, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("leds: periph host init: %w", err)
	}
	errPin := gpioreg.ByName(errName)
	if errPin == nil {
		return nil, fmt.Errorf("leds: error pin %q not found", errName)
	}
	okPin := gpioreg.ByName(okName)
	if okPin == nil {
		return nil, fmt.Errorf("leds: ok pin %q not found", okName)
	}
	l := &LEDs{errPin: errPin, okPin: okPin}
	if err := l.Set(Lights{}); err != nil {
		return nil, err
	}
	log.Printf("leds: error=%s ok=%s", errPin, okPin)
	return l, nil
}

// Set drives both pins to match s.
func (l *LEDs) Set(s Lights) error {
	if err := l.errPin.Out(level(s.Error)); err != nil {
		return fmt.Errorf("leds: error pin: %w", err)
	}
	if err := l.okPin.Out(level(s.OK)); err != nil {
		return fmt.Errorf("leds: ok pin: %w", err)
	}
	return nil
}

func level(on bool) gpio.Level {
	if on {
		return gpio.High
	}
	return gpio.Low
}

// NoLEDs is used when no indicator pins are configured.
type NoLEDs struct{}

func (NoLEDs) Set(Lights) error { return nil }
