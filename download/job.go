package download

import (
	"fmt"

	"github.com/xeptore/flaw/v8"
)

type State int

const (
	StateQueued State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Order int

const (
	OrderFIFO Order = iota
	OrderLIFO
)

func ParseOrder(s string) (Order, error) {
	switch s {
	case "fifo", "":
		return OrderFIFO, nil
	case "lifo":
		return OrderLIFO, nil
	default:
		return 0, fmt.Errorf("unsupported queue order %q", s)
	}
}

// Request identifies the remote payload of a track.
type Request struct {
	TrackID string
	URL     string
	Ext     string
	Size    int64
}

type Job struct {
	ID      string
	Request Request
	State   State
	// Attempt is 1 for the first run of a track and grows with each retry.
	Attempt int
}

func (j *Job) FlawP() flaw.P {
	return flaw.P{
		"id":       j.ID,
		"track_id": j.Request.TrackID,
		"url":      j.Request.URL,
		"ext":      j.Request.Ext,
		"size":     j.Request.Size,
		"state":    j.State.String(),
		"attempt":  j.Attempt,
	}
}
