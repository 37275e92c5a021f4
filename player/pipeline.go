package player

import (
	"fmt"
	"time"
)

type PipelineState int

const (
	PipelineNull PipelineState = iota
	PipelineReady
	PipelinePaused
	PipelinePlaying
)

func (s PipelineState) String() string {
	switch s {
	case PipelineNull:
		return "null"
	case PipelineReady:
		return "ready"
	case PipelinePaused:
		return "paused"
	case PipelinePlaying:
		return "playing"
	default:
		return fmt.Sprintf("PipelineState(%d)", int(s))
	}
}

type MessageKind int

const (
	MessageEOS MessageKind = iota
	MessageError
)

// Message is posted by a pipeline when the bound source ends or fails.
type Message struct {
	Kind   MessageKind
	Source string
	Err    error
}

// Pipeline is the decode and effects engine bound to one source at a time.
type Pipeline interface {
	Bind(path string) error
	Unbind() error
	SetState(state PipelineState) error
	Seek(rate float64, position time.Duration) error
	QueryPosition() (time.Duration, error)
	QueryDuration() (time.Duration, error)
	SetVolume(volume float64) error
	SetAmplification(amplification float64) error
	SetEqualizerBand(band int, gain float64) error
	SetRemoveSilence(enabled bool) error
	Messages() <-chan Message
	Close() error
}
