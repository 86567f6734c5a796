package console

import (
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"
)

// OpenSerial opens the command port in 8N1 mode.
func OpenSerial(port string, baud uint) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = 115200
	}
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	rwc, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("console: open %s: %w", port, err)
	}
	log.Printf("console: serial port opened on %s at %d baud", port, baud)
	return rwc, nil
}
