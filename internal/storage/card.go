// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package storage wraps the removable card: mount state, directory
// operations, and scoped log-file sessions.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/relabs-tech/mpu_datalogger/internal/fault"
)

// Card is a removable storage device exposed as a directory tree.
//
// When Device is set, Mount and Unmount call mount(2)/umount(2) on the mount
// point. Without a device the mount point is treated as an always-present
// card and mounting only gates access to it.
type Card struct {
	root   string
	device string
	fstype string

	mounted bool
}

// NewCard returns an unmounted card rooted at mountPoint.
func NewCard(mountPoint, device, fstype string) *Card {
	if fstype == "" {
		fstype = "vfat"
	}
	return &Card{root: mountPoint, device: device, fstype: fstype}
}

// Mounted reports whether the last Mount succeeded and no Unmount followed.
func (c *Card) Mounted() bool { return c.mounted }

// Root returns the mount point.
func (c *Card) Root() string { return c.root }

// Mount makes the card available.
func (c *Card) Mount() error {
	if c.device != "" {
		if err := unix.Mount(c.device, c.root, c.fstype, 0, ""); err != nil && !errors.Is(err, unix.EBUSY) {
			return fault.New(fault.MountFailed, "mount "+c.device, err)
		}
	} else {
		st, err := os.Stat(c.root)
		if err != nil {
			return fault.New(fault.MountFailed, "mount "+c.root, err)
		}
		if !st.IsDir() {
			return fault.New(fault.MountFailed, "mount "+c.root, fmt.Errorf("%s is not a directory", c.root))
		}
	}
	c.mounted = true
	log.Printf("storage: mounted %s", c.root)
	return nil
}

// Unmount releases the card.
func (c *Card) Unmount() error {
	if !c.mounted {
		return fault.New(fault.NotMounted, "unmount "+c.root, nil)
	}
	if c.device != "" {
		if err := unix.Unmount(c.root, 0); err != nil {
			return fault.New(fault.UnmountFailed, "unmount "+c.root, err)
		}
	}
	c.mounted = false
	log.Printf("storage: unmounted %s", c.root)
	return nil
}

func (c *Card) requireMounted(op string) error {
	if !c.mounted {
		return fault.New(fault.NotMounted, op, nil)
	}
	return nil
}

// List writes one line per entry of the card root to w.
func (c *Card) List(w io.Writer) error {
	if err := c.requireMounted("list"); err != nil {
		return err
	}
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fault.New(fault.ListFailed, "list "+c.root, err)
	}
	fmt.Fprintf(w, "Directory: %s\n", c.root)
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(w, "  [DIR]  %s\n", e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			return fault.New(fault.ListFailed, "stat "+e.Name(), err)
		}
		fmt.Fprintf(w, "  %8d %s\n", info.Size(), e.Name())
	}
	return nil
}

// FreeSpace returns the space available to unprivileged writers, in KiB.
func (c *Card) FreeSpace() (uint64, error) {
	if err := c.requireMounted("free space"); err != nil {
		return 0, err
	}
	var st unix.Statfs_t
	if err := unix.Statfs(c.root, &st); err != nil {
		return 0, fault.New(fault.StatfsFailed, "statfs "+c.root, err)
	}
	return st.Bavail * uint64(st.Bsize) / 1024, nil
}

// Format erases every entry on the card.
func (c *Card) Format() error {
	if err := c.requireMounted("format"); err != nil {
		return err
	}
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fault.New(fault.FormatFailed, "format "+c.root, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.root, e.Name())); err != nil {
			return fault.New(fault.FormatFailed, "format "+e.Name(), err)
		}
	}
	log.Printf("storage: formatted %s (%d entries removed)", c.root, len(entries))
	return nil
}

// Create opens name for writing, truncating any existing file.
func (c *Card) Create(name string) (Handle, error) {
	if err := c.requireMounted("open " + name); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(c.root, name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fault.New(fault.OpenFailed, "open "+name, err)
	}
	return &file{f: f, card: c, name: name}, nil
}

// ReadFile copies the content of name to w.
func (c *Card) ReadFile(name string, w io.Writer) error {
	if err := c.requireMounted("read " + name); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(c.root, name))
	if err != nil {
		return fault.New(fault.ReadFailed, "open "+name, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fault.New(fault.ReadFailed, "read "+name, err)
	}
	return nil
}

// file is an open log file on a Card.
type file struct {
	f    *os.File
	card *Card
	name string
}

func (h *file) Write(p []byte) (int, error) {
	if !h.card.mounted {
		return 0, fault.New(fault.NotMounted, "write "+h.name, nil)
	}
	n, err := h.f.Write(p)
	if err != nil {
		return n, classifyWrite(h.name, err)
	}
	return n, nil
}

func (h *file) Close() error {
	if err := h.f.Close(); err != nil {
		return classifyWrite(h.name, err)
	}
	return nil
}

func classifyWrite(name string, err error) error {
	if errors.Is(err, unix.ENOSPC) {
		return fault.New(fault.DiskFull, "write "+name, err)
	}
	return fault.New(fault.WriteRejected, "write "+name, err)
}
