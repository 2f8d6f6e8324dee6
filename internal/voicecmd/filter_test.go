package voicecmd

import "testing"

func TestCheckExactPhrases(t *testing.T) {
	t.Parallel()

	f := New()

	tests := []struct {
		transcript string
		want       Action
		matched    bool
	}{
		{"clear conversation", ActionClear, true},
		{"Clear conversation.", ActionClear, true},
		{"reset conversation", ActionClear, true},
		{"start over", ActionClear, true},
		{"goodbye", ActionQuit, true},
		{"Goodbye!", ActionQuit, true},
		{"bye bye", ActionQuit, true},
		{"end conversation", ActionQuit, true},
	}

	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			got, matched := f.Check(tt.transcript)
			if matched != tt.matched || got != tt.want {
				t.Errorf("Check(%q) = (%v, %v), want (%v, %v)",
					tt.transcript, got, matched, tt.want, tt.matched)
			}
		})
	}
}

func TestCheckFuzzyTranscriptionNoise(t *testing.T) {
	t.Parallel()

	f := New()

	// Plausible STT renderings of the command phrases.
	tests := []struct {
		transcript string
		want       Action
	}{
		{"good bye", ActionQuit},
		{"clear conversationn", ActionClear},
		{"clear conversacion", ActionClear},
		{"reset conversation,", ActionClear},
	}

	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			got, matched := f.Check(tt.transcript)
			if !matched {
				t.Fatalf("Check(%q) did not match", tt.transcript)
			}
			if got != tt.want {
				t.Errorf("Check(%q) = %v, want %v", tt.transcript, got, tt.want)
			}
		})
	}
}

func TestCheckOrdinarySpeechDoesNotMatch(t *testing.T) {
	t.Parallel()

	f := New()

	tests := []string{
		"what is the status of my order",
		"I had a long conversation with my friend yesterday",
		"can you say that again please",
		"it was a good day overall",
		"",
		"   ",
	}

	for _, transcript := range tests {
		t.Run(transcript, func(t *testing.T) {
			if got, matched := f.Check(transcript); matched {
				t.Errorf("Check(%q) = %v, want no match", transcript, got)
			}
		})
	}
}

func TestCheckCustomCommands(t *testing.T) {
	t.Parallel()

	f := New(WithCommands([]Command{
		{Phrase: "hold the line", Action: ActionNone},
		{Phrase: "hang up", Action: ActionQuit},
	}))

	if got, matched := f.Check("hang up"); !matched || got != ActionQuit {
		t.Errorf("Check(hang up) = (%v, %v), want (quit, true)", got, matched)
	}
	if _, matched := f.Check("goodbye"); matched {
		t.Error("default command matched after WithCommands replacement")
	}
}

func TestActionString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action Action
		want   string
	}{
		{ActionNone, "none"},
		{ActionClear, "clear"},
		{ActionQuit, "quit"},
	}
	for _, tt := range tests {
		if got := tt.action.String(); got != tt.want {
			t.Errorf("Action(%d).String() = %q, want %q", tt.action, got, tt.want)
		}
	}
}
