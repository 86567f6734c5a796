package status

// Outcome is the result class a render reports.
type Outcome uint8

const (
	Idle Outcome = iota
	InProgress
	Success
	DeviceError
	UnexpectedError
)

var outcomeNames = [...]string{
	Idle:            "idle",
	InProgress:      "in_progress",
	Success:         "success",
	DeviceError:     "device_error",
	UnexpectedError: "unexpected_error",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Lights is the state of the two indicator LEDs.
type Lights struct {
	Error bool // first indicator
	OK    bool // second indicator
}

// LightsFor returns the indicator code for o:
// both lit while in progress, first only on error, second only on success,
// none when idle.
func LightsFor(o Outcome) Lights {
	switch o {
	case InProgress:
		return Lights{Error: true, OK: true}
	case Success:
		return Lights{OK: true}
	case DeviceError, UnexpectedError:
		return Lights{Error: true}
	default:
		return Lights{}
	}
}
