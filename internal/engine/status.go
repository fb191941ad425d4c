package engine

type Status int32

const (
	StatusCreated Status = iota
	StatusConnecting
	StatusDownloading
	StatusPaused
	StatusFinished
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusConnecting:
		return "connecting"
	case StatusDownloading:
		return "downloading"
	case StatusPaused:
		return "paused"
	case StatusFinished:
		return "finished"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusStopped || s == StatusFailed
}

// Phase refines StatusDownloading for status reporters.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseResolving   Phase = "resolving"
	PhaseDownloading Phase = "downloading"
	PhaseMerging     Phase = "merging"
	PhaseVerifying   Phase = "verifying"
	PhaseDone        Phase = "done"
)
