// Package voicecmd recognises spoken control commands in transcripts before
// they reach the reply pipeline, so a user can say "clear conversation" or
// "goodbye" and have the session act on it instead of answering.
//
// Transcription output is noisy, so matching combines Double Metaphone
// phonetic encoding with Jaro-Winkler string similarity: a transcript is
// accepted as a command when it phonetically overlaps a command phrase and
// scores above the phonetic threshold, or when pure string similarity
// exceeds a stricter fuzzy threshold.
package voicecmd

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Action is what the caller should do when a command matches.
type Action int

const (
	// ActionNone means the transcript is ordinary speech.
	ActionNone Action = iota

	// ActionClear means the user asked to reset the conversation history.
	ActionClear

	// ActionQuit means the user ended the conversation.
	ActionQuit
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionClear:
		return "clear"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

// Command binds a spoken phrase to an action.
type Command struct {
	// Phrase is the canonical spoken form, e.g. "clear conversation".
	Phrase string

	// Action is what matching this phrase means.
	Action Action
}

// DefaultCommands returns the built-in command set.
func DefaultCommands() []Command {
	return []Command{
		{Phrase: "clear conversation", Action: ActionClear},
		{Phrase: "reset conversation", Action: ActionClear},
		{Phrase: "start over", Action: ActionClear},
		{Phrase: "goodbye", Action: ActionQuit},
		{Phrase: "bye bye", Action: ActionQuit},
		{Phrase: "end conversation", Action: ActionQuit},
	}
}

// Option is a functional option for configuring a [Filter].
type Option func(*Filter)

// WithCommands replaces the default command set.
func WithCommands(cmds []Command) Option {
	return func(f *Filter) { f.commands = cmds }
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched phrase to be accepted. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(f *Filter) { f.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic overlap is found. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(f *Filter) { f.fuzzyThreshold = threshold }
}

// Filter matches transcripts against spoken commands. It is read-only after
// construction and safe for concurrent use.
type Filter struct {
	commands          []Command
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Filter] with the default command set and thresholds unless
// overridden by options.
func New(opts ...Option) *Filter {
	f := &Filter{
		commands:          DefaultCommands(),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Check tests transcript against the command set and returns the action of
// the best match. Returns ActionNone and false for ordinary speech.
func (f *Filter) Check(transcript string) (Action, bool) {
	input := normalise(transcript)
	if input == "" {
		return ActionNone, false
	}
	inputTokens := strings.Fields(input)
	inputCodes := codesForTokens(inputTokens)

	var (
		bestAction   Action
		bestScore    float64
		bestPhonetic bool
		found        bool
	)

	for _, cmd := range f.commands {
		phrase := normalise(cmd.Phrase)
		phraseTokens := strings.Fields(phrase)

		phonetic := codesOverlap(inputCodes, codesForTokens(phraseTokens))
		score := bestJWScore(inputTokens, phraseTokens, input, phrase)

		if phonetic && score >= f.phoneticThreshold {
			if !bestPhonetic || score > bestScore {
				bestAction, bestScore, bestPhonetic, found = cmd.Action, score, true, true
			}
		} else if !bestPhonetic && score >= f.fuzzyThreshold && score > bestScore {
			bestAction, bestScore, found = cmd.Action, score, true
		}
	}

	if !found {
		return ActionNone, false
	}
	return bestAction, true
}

// normalise lowercases the transcript and strips everything except letters,
// digits, and spaces, collapsing the punctuation the transcription stage
// likes to add.
func normalise(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// transcript and the phrase, comparing both the full strings and the
// space-stripped strings so tokenisation differences ("good bye" vs
// "goodbye") do not depress the score. Per-token comparison is deliberately
// not used: a single shared word ("conversation") must not hijack an
// ordinary sentence into a command.
func bestJWScore(inputTokens, phraseTokens []string, inputFull, phraseFull string) float64 {
	score := matchr.JaroWinkler(inputFull, phraseFull, false)

	if len(inputTokens) > 1 || len(phraseTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(phraseTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	return score
}
