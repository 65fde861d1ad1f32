package stt

type Status int

const (
	Idle Status = iota
	Recording
	Processing
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	case Error:
		return "error"
	}
	return "unknown"
}

// State is the service's single shared datum. Message is set only in Error.
type State struct {
	Status  Status
	Message string
}

func (s State) String() string {
	if s.Status == Error && s.Message != "" {
		return "error: " + s.Message
	}
	return s.Status.String()
}
