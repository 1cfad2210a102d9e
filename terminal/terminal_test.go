package terminal

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs string
	}{
		{"quit", "quit", ""},
		{"break 0x1000", "break", "0x1000"},
		{"file  /tmp/a.out", "file", "/tmp/a.out"},
		{"continue", "continue", ""},
	}
	for _, tt := range tests {
		name, args := parseCommand(tt.in)
		if name != tt.wantName || args != tt.wantArgs {
			t.Errorf("parseCommand(%q) = (%q, %q), want (%q, %q)", tt.in, name, args, tt.wantName, tt.wantArgs)
		}
	}
}
