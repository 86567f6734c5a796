package status

// Frame is one full display surface worth of text, top to bottom.
// A Frame is built fresh for every render and never reused.
type Frame struct {
	Lines []string
}

// NewFrame returns a frame holding lines, dropping trailing empty ones.
func NewFrame(lines ...string) Frame {
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return Frame{Lines: append([]string(nil), lines...)}
}
