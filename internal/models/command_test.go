package models

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		tag  string
		verb Verb
		args string
	}{
		{"a1 CAPABILITY\r\n", "a1", Capability, ""},
		{"a2 login test pass\r\n", "a2", Login, "test pass"},
		{"a3 UID FETCH 1:* (UID FLAGS)", "a3", UID, "FETCH 1:* (UID FLAGS)"},
		{"a4 Select INBOX\n", "a4", Select, "INBOX"},
		{"a5 XYZZY foo", "a5", Unrecognised, "foo"},
		{"a6", "a6", Unrecognised, ""},
		{"", "*", Unrecognised, ""},
		{"a7 starttls", "a7", StartTLS, ""},
		{"a8 LIST \"\" \"*\"", "a8", List, `"" "*"`},
	}

	for _, tt := range tests {
		cmd := ParseCommand(tt.line)
		if cmd.Tag != tt.tag {
			t.Errorf("%q: expected tag %q, got %q", tt.line, tt.tag, cmd.Tag)
		}
		if cmd.Verb != tt.verb {
			t.Errorf("%q: expected verb %v, got %v", tt.line, tt.verb, cmd.Verb)
		}
		if cmd.Args != tt.args {
			t.Errorf("%q: expected args %q, got %q", tt.line, tt.args, cmd.Args)
		}
	}
}

func TestVerbString(t *testing.T) {
	if Fetch.String() != "FETCH" {
		t.Errorf("Expected FETCH, got %s", Fetch.String())
	}
	if Verb(99).String() != "UNRECOGNISED" {
		t.Errorf("Expected UNRECOGNISED for out of range verb, got %s", Verb(99).String())
	}
	for v, name := range verbNames {
		if v == Unrecognised {
			continue
		}
		if LookupVerb(name) != v {
			t.Errorf("LookupVerb(%s) did not round trip", name)
		}
	}
}

func TestCommandFields(t *testing.T) {
	tests := []struct {
		args string
		want []string
	}{
		{`test pass`, []string{"test", "pass"}},
		{`"test@example.scot" "p a s s"`, []string{"test@example.scot", "p a s s"}},
		{`"" "*"`, []string{"", "*"}},
		{`  INBOX  `, []string{"INBOX"}},
		{`"say \"hi\""`, []string{`say "hi"`}},
		{``, nil},
	}

	for _, tt := range tests {
		got := (&Command{Args: tt.args}).Fields()
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Fields(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
