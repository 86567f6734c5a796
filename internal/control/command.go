// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

// Command is a single operation request surfaced by the input arbiter.
// The zero value is None.
type Command uint8

const (
	None Command = iota
	Mount
	Unmount
	List
	ReadLog
	FreeSpace
	Capture
	Format
	Help
)

var commandNames = [...]string{
	None:      "none",
	Mount:     "mount",
	Unmount:   "unmount",
	List:      "list",
	ReadLog:   "read-log",
	FreeSpace: "free-space",
	Capture:   "capture",
	Format:    "format",
	Help:      "help",
}

func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return "unknown"
}

// FromChar maps a character from the command stream to its fixed command.
// Characters outside the alphabet map to None.
func FromChar(ch byte) Command {
	switch ch {
	case 'a':
		return Mount
	case 'b':
		return Unmount
	case 'c':
		return List
	case 'd':
		return ReadLog
	case 'e':
		return FreeSpace
	case 'f':
		return Capture
	case 'g':
		return Format
	case 'h':
		return Help
	default:
		return None
	}
}

// Char returns the stream character bound to c, or 0 for None.
func (c Command) Char() byte {
	if c == None || int(c) >= len(commandNames) {
		return 0
	}
	return 'a' + byte(c-Mount)
}

// Button identifies one of the two physical push buttons.
type Button uint8

const (
	ButtonA Button = iota
	ButtonB

	numButtons
)

func (b Button) String() string {
	switch b {
	case ButtonA:
		return "A"
	case ButtonB:
		return "B"
	default:
		return "?"
	}
}

// FromButton maps a button press to its context-sensitive command.
// A always captures; B toggles the card mount.
func FromButton(b Button, mounted bool) Command {
	switch b {
	case ButtonA:
		return Capture
	case ButtonB:
		if mounted {
			return Unmount
		}
		return Mount
	default:
		return None
	}
}
