package storage

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// Handle is an open file on the storage device.
//
// Unlike io.Writer, Write may return n < len(p) with a nil error; the
// session layer treats that as a short write.
type Handle interface {
	Write(p []byte) (int, error)
	Close() error
}

// Opener creates log files.
type Opener interface {
	Create(name string) (Handle, error)
}

// Session is a log file held open for the duration of one capture.
type Session struct {
	name string
	h    Handle

	bytes       int
	records     int
	shortWrites int
	lastWrite   int
}

// WithSession opens name, runs fn, and closes the file on every exit path.
// A close failure is reported only when fn itself succeeded.
func WithSession(o Opener, name string, fn func(*Session) error) (err error) {
	h, err := o.Create(name)
	if err != nil {
		return err
	}
	s := &Session{name: name, h: h}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			log.Printf("storage: close %s: %v", name, cerr)
			if err == nil {
				err = cerr
			}
		}
	}()
	return fn(s)
}

// WriteRecord writes one record. It returns io.ErrShortWrite, which callers
// treat as non-fatal, when only part of the record reached the device.
// Any other error means the device rejected the write outright.
func (s *Session) WriteRecord(rec string) (int, error) {
	n, err := s.h.Write([]byte(rec))
	s.bytes += n
	s.lastWrite = n
	if err != nil && n == 0 {
		return 0, err
	}
	s.records++
	if n < len(rec) {
		s.shortWrites++
		if err != nil {
			log.Printf("storage: %s: partial write %d/%d: %v", s.name, n, len(rec), err)
		}
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Name returns the file name.
func (s *Session) Name() string { return s.name }

// Bytes returns the total number of bytes written so far.
func (s *Session) Bytes() int { return s.bytes }

// Records returns how many records reached the device, fully or partially.
func (s *Session) Records() int { return s.records }

// ShortWrites returns how many records were only partially written.
func (s *Session) ShortWrites() int { return s.shortWrites }

// LastWrite returns the byte count of the most recent write.
func (s *Session) LastWrite() int { return s.lastWrite }
