package console

import (
	"fmt"
	"io"
)

// Prompt is printed after every command completes.
const Prompt = "\nChoose a command (h = help):  "

// ClearScreen resets an ANSI terminal and homes the cursor.
const ClearScreen = "\033[2J\033[H"

var helpLines = []struct {
	key  byte
	text string
}{
	{'a', "Mount the SD card"},
	{'b', "Unmount the SD card"},
	{'c', "List files"},
	{'d', "Show the log file content"},
	{'e', "Get free space on the SD card"},
	{'f', "Capture 128 MPU samples and save to the log file"},
	{'g', "Format the SD card"},
	{'h', "Show this help"},
}

// WriteHelp prints the command alphabet to w.
func WriteHelp(w io.Writer) {
	fmt.Fprint(w, "\n\nAvailable commands:\n\n")
	for _, l := range helpLines {
		fmt.Fprintf(w, "Press '%c' - %s\n", l.key, l.text)
	}
	fmt.Fprint(w, "\nButton A captures, button B mounts or unmounts the card.\n")
	fmt.Fprint(w, Prompt)
}
