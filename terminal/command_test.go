package terminal

import "testing"

func TestDebugCommandsCoversSevenCommandsPlusHelp(t *testing.T) {
	cmds := DebugCommands()
	want := []string{"help", "file", "run", "continue", "break", "unbreak", "breakpoints", "quit"}
	if len(cmds.cmds) != len(want) {
		t.Fatalf("DebugCommands() has %d commands, want %d", len(cmds.cmds), len(want))
	}
	for _, name := range want {
		found := false
		for _, c := range cmds.cmds {
			if c.match(name) {
				found = true
			}
		}
		if !found {
			t.Fatalf("no command registered under %q", name)
		}
	}
}

func TestFindUnknownCommand(t *testing.T) {
	cmds := DebugCommands()
	err := cmds.Find("disassemble")(nil, "")
	if err == nil {
		t.Fatal("Find() on an unregistered command should produce a function that errors")
	}
}

func TestMergeAppendsConfiguredAliases(t *testing.T) {
	cmds := DebugCommands()
	cmds.Merge(map[string][]string{"continue": {"cont"}})

	found := false
	for _, c := range cmds.cmds {
		if c.aliases[0] == "continue" {
			for _, a := range c.aliases {
				if a == "cont" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("Merge() did not append the configured alias")
	}
}

func TestParseHexAddr(t *testing.T) {
	tests := []struct {
		in      string
		want    uintptr
		wantErr bool
	}{
		{"0x1000", 0x1000, false},
		{"0X20", 0x20, false},
		{"1000", 0, true},
		{"0xzz", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseHexAddr(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHexAddr(%q) = %#x, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHexAddr(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseHexAddr(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestTokenizeSplitsQuotedPath(t *testing.T) {
	got, err := tokenize(`"/path/with a space/bin"`)
	if err != nil {
		t.Fatalf("tokenize(): %v", err)
	}
	if len(got) != 1 || got[0] != "/path/with a space/bin" {
		t.Fatalf("tokenize() = %#v, want a single unquoted token", got)
	}
}

func TestTokenizeEmptyArgs(t *testing.T) {
	got, err := tokenize("   ")
	if err != nil {
		t.Fatalf("tokenize(): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("tokenize(\"   \") = %#v, want empty", got)
	}
}
