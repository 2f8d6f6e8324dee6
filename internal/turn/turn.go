// Package turn implements the three-stage pipeline that converts one
// captured utterance into one conversational turn: transcribe the audio,
// generate a reply, synthesise and play the reply.
//
// The [Engine] never returns an error past its boundary. Every utterance
// handed to [Engine.Run] produces a [Turn] with a terminal status; failures
// are classified onto the Turn via the sentinel errors in this package.
package turn

import "time"

// Status is the lifecycle state of a [Turn].
type Status string

const (
	// StatusPending means the turn is still moving through the pipeline.
	StatusPending Status = "pending"

	// StatusCompleted means both the transcript and the reply were produced.
	// A completed turn may still carry a non-fatal synthesis error.
	StatusCompleted Status = "completed"

	// StatusFailed means a fatal stage error ended the turn early.
	StatusFailed Status = "failed"

	// StatusIntercepted means the transcript was recognised as a spoken
	// control command; no reply was generated and the turn does not enter
	// the history.
	StatusIntercepted Status = "intercepted"
)

// Well-known command names recorded on intercepted turns.
const (
	CommandClear = "clear"
	CommandQuit  = "quit"
)

// Turn is the record of one exchange: what the user said, what the agent
// replied, and how the pipeline fared. Once a Turn reaches a terminal status
// it is immutable.
type Turn struct {
	// ID uniquely identifies the turn.
	ID string

	// Seq is the sequence number of the utterance that started the turn.
	Seq uint64

	// UserText is the transcript of the user's utterance. Empty when
	// transcription failed.
	UserText string

	// BotText is the generated reply. Empty when the turn failed before or
	// during generation.
	BotText string

	// Status is the turn's lifecycle state.
	Status Status

	// Command names the spoken command that intercepted the turn. Empty
	// unless Status is [StatusIntercepted].
	Command string

	// Err classifies what went wrong. For failed turns it wraps
	// [ErrTranscription] or [ErrGeneration]; a completed turn may carry a
	// wrapped [ErrSynthesis] when the reply was produced but could not be
	// spoken. Nil on full success.
	Err error

	// StartedAt and FinishedAt bound the turn's wall-clock processing time.
	StartedAt  time.Time
	FinishedAt time.Time
}
