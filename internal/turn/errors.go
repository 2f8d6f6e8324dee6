package turn

import "errors"

// Error kinds for the turn pipeline. Every failed [Turn] carries exactly one
// of these in its error chain so callers can classify the failure with
// [errors.Is] without string matching.
var (
	// ErrCapture indicates the audio source failed before an utterance could
	// be produced.
	ErrCapture = errors.New("audio capture failed")

	// ErrTranscription indicates the speech-to-text stage failed or produced
	// an empty transcript.
	ErrTranscription = errors.New("transcription failed")

	// ErrGeneration indicates the reply-generation stage failed or produced
	// an empty reply.
	ErrGeneration = errors.New("reply generation failed")

	// ErrSynthesis indicates the speech-synthesis or playback stage failed.
	// Synthesis failures do not fail the turn; the error is still recorded
	// on the Turn so callers can surface it.
	ErrSynthesis = errors.New("speech synthesis failed")

	// ErrBusy indicates a turn was submitted while another turn was still
	// pending on the same session.
	ErrBusy = errors.New("a turn is already in progress")
)
