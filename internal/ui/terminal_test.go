package ui

import "testing"

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name                       string
		noColor, clicolor, forceCL string
		want                       bool
	}{
		{"NO_COLOR wins", "1", "", "1", false},
		{"CLICOLOR=0", "", "0", "", false},
		{"forced without a terminal", "", "", "1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("CLICOLOR", tt.clicolor)
			t.Setenv("CLICOLOR_FORCE", tt.forceCL)
			if got := ShouldUseColor(); got != tt.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldUseEmojiDisabled(t *testing.T) {
	t.Setenv("PLOG_NO_EMOJI", "1")
	if ShouldUseEmoji() {
		t.Error("ShouldUseEmoji() = true with PLOG_NO_EMOJI set")
	}
}
