// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fault defines the device-error taxonomy shared by the storage,
// sensor and dispatcher layers.
package fault

import "errors"

// Kind is a stable identifier for a class of device failure.
// It is a comparable string newtype and implements error.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	None Kind = ""

	NotMounted    Kind = "not_mounted"
	MountFailed   Kind = "mount_failed"
	UnmountFailed Kind = "unmount_failed"
	ListFailed    Kind = "list_failed"
	ReadFailed    Kind = "read_failed"
	OpenFailed    Kind = "open_failed"
	DiskFull      Kind = "disk_full"
	WriteRejected Kind = "write_rejected"
	FormatFailed  Kind = "format_failed"
	StatfsFailed  Kind = "statfs_failed"
	BusFailure    Kind = "bus_failure"
)

// E carries a Kind together with the operation that failed and its cause.
type E struct {
	K   Kind
	Op  string
	Err error
}

func (e *E) Error() string {
	if e.Err != nil {
		return e.Op + ": " + string(e.K) + ": " + e.Err.Error()
	}
	return e.Op + ": " + string(e.K)
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Kind() Kind    { return e.K }

// New wraps cause as a device error of kind k raised by op.
func New(k Kind, op string, cause error) error {
	return &E{K: k, Op: op, Err: cause}
}

// Of extracts the Kind from err. Errors outside the taxonomy yield None.
func Of(err error) Kind {
	if err == nil {
		return None
	}
	var e *E
	if errors.As(err, &e) {
		return e.K
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return None
}

// IsDevice reports whether err belongs to the device-error taxonomy.
func IsDevice(err error) bool { return Of(err) != None }
