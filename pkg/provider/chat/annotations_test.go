package chat

import "testing"

func TestParseAnnotations(t *testing.T) {
	a := ParseAnnotations("Good answer. [SCORE: 0.83] Next question... [FINISHED]")
	if a.QualityScore == nil || *a.QualityScore != 0.83 {
		t.Errorf("QualityScore = %v, want 0.83", a.QualityScore)
	}
	if !a.Finished {
		t.Error("Finished = false, want true")
	}
	if a.CodingPhase {
		t.Error("CodingPhase = true, want false")
	}

	a = ParseAnnotations("Let's write some code. [CODING]")
	if !a.CodingPhase {
		t.Error("CodingPhase = false, want true")
	}
	if a.QualityScore != nil {
		t.Errorf("QualityScore = %v, want nil", a.QualityScore)
	}
}

func TestStripAnnotations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tags", "Tell me about yourself.", "Tell me about yourself."},
		{"score tag", "Well done. [SCORE: 0.9] Moving on.", "Well done. Moving on."},
		{"finished tag", "That concludes our interview. [FINISHED]", "That concludes our interview."},
		{"multiple tags", "[SCORE:0.5] Okay. [CODING] Here is the task.", " Okay. Here is the task."},
		{"incomplete tag kept", "Good. [SCO", "Good. [SCO"},
		{"plain bracket kept", "Big-O is written as O[n] sometimes.", "Big-O is written as O[n] sometimes."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripAnnotations(tt.in); got != tt.want {
				t.Errorf("StripAnnotations(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSafeSpoken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "Hello there.", "Hello there."},
		{"trailing open bracket held back", "Hello there. [SCO", "Hello there. "},
		{"closed bracket passes through", "Indexing a[0] is constant time.", "Indexing a[0] is constant time."},
		{"bare open at end", "wait [", "wait "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeSpoken(tt.in); got != tt.want {
				t.Errorf("SafeSpoken(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
