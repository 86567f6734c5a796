package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/mpu_datalogger/internal/fault"
	"github.com/relabs-tech/mpu_datalogger/internal/imu"
	"github.com/relabs-tech/mpu_datalogger/internal/sensors"
	"github.com/relabs-tech/mpu_datalogger/internal/storage"
)

// CaptureSamples is the fixed number of records per capture.
const CaptureSamples = 128

// CaptureResult summarises one capture session.
type CaptureResult struct {
	Samples     int // data records written, header excluded
	Bytes       int // total bytes written, header included
	ShortWrites int
	LastRecord  int // bytes written by the last record
}

// Capture writes the CSV header and n samples from r to a fresh file name
// on o. Each sample is handed to onSample once it is on the card. Short
// writes are counted and the loop continues; any other write or read error
// aborts the capture. The file is closed on every path.
func Capture(ctx context.Context, o storage.Opener, name string, r sensors.RawReader, n int, pause func(context.Context) error, onSample func(imu.Sample)) (CaptureResult, error) {
	var res CaptureResult

	err := storage.WithSession(o, name, func(s *storage.Session) error {
		defer func() {
			res.Bytes = s.Bytes()
			res.ShortWrites = s.ShortWrites()
			res.LastRecord = s.LastWrite()
		}()

		if err := writeRecord(s, imu.CSVHeader, 0); err != nil {
			return err
		}

		for i := 1; i <= n; i++ {
			raw, err := r.ReadRaw()
			if err != nil {
				if !fault.IsDevice(err) {
					err = fault.New(fault.BusFailure, "read sample "+strconv.Itoa(i), err)
				}
				return err
			}
			sample := imu.NewSample(i, raw)
			if err := writeRecord(s, sample.CSV(), i); err != nil {
				return err
			}
			res.Samples = i
			if onSample != nil {
				onSample(sample)
			}
			if i < n && pause != nil {
				if err := pause(ctx); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return res, err
}

func writeRecord(s *storage.Session, rec string, index int) error {
	_, err := s.WriteRecord(rec)
	if errors.Is(err, io.ErrShortWrite) {
		log.Warnf("capture: not all bytes were written for record %d", index)
		return nil
	}
	return err
}

func (c *Controller) capture(ctx context.Context) ([]string, error) {
	pause := func(ctx context.Context) error { return c.sleep(ctx, c.pause) }
	res, err := Capture(ctx, c.card, c.logName, c.sensor, CaptureSamples, pause, c.publishSample)
	c.lastCapture = res
	if res.ShortWrites > 0 {
		log.Warnf("capture: %d short writes in %s", res.ShortWrites, c.logName)
	}
	if err != nil {
		log.Printf("capture: aborted after %d samples", res.Samples)
		return nil, err
	}
	fmt.Fprintf(c.out, "\nMPU data saved to CSV file %s (%d bytes).\n\n", c.logName, res.Bytes)
	return []string{
		"Data saved!",
		"Bytes written:",
		strconv.Itoa(res.LastRecord),
		fmt.Sprintf("%d samples", res.Samples),
	}, nil
}

func (c *Controller) publishSample(s imu.Sample) {
	for _, sink := range c.sinks {
		sink.PublishSample(s)
	}
}
