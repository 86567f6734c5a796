// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package status

import (
	"fmt"
	"image"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

const (
	lineHeight = 13 // basicfont.Face7x13
	maxLines   = 4
)

// drawer is the subset of *ssd1306.Dev the OLED renderer needs.
type drawer interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// OLED renders frames on an SSD1306 128x64 panel.
type OLED struct {
	dev drawer
}

// OpenOLED opens the named I2C bus and initializes the panel on it.
// The returned closer releases the bus.
func OpenOLED(busName string) (*OLED, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("display: periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("display: I2C open (%q): %w", busName, err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("display: ssd1306 init: %w", err)
	}
	log.Printf("display: ssd1306 initialized on bus %q", busName)
	return &OLED{dev: dev}, bus, nil
}

// Render blanks the panel and draws f in a single transfer.
func (o *OLED) Render(f Frame) error {
	img := drawFrame(f, o.dev.Bounds())
	return o.dev.Draw(o.dev.Bounds(), img, image.Point{})
}

// drawFrame paints f onto a fresh, fully blank 1-bit image.
func drawFrame(f Frame, bounds image.Rectangle) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(bounds)

	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range f.Lines {
		if i >= maxLines {
			break
		}
		d.Dot = fixed.P(0, lineHeight*(i+1)-2)
		d.DrawString(line)
	}
	return img
}

// LogRenderer prints frames to the log. Used when no panel is attached.
type LogRenderer struct{}

func (LogRenderer) Render(f Frame) error {
	log.Debugf("display: %q", f.Lines)
	return nil
}
