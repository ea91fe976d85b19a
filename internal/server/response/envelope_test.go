package response

import (
	"testing"
)

const displayNamesMsg = "From: \"Adam the Rusty\" <adam.bar@foo.com>\r\n" +
	"To: Adam Test <adam.test@example.scot>\r\n" +
	"Subject: Testing Email\r\n" +
	"Date: Tue, 23 Nov 2021 16:56:32 +0000\r\n" +
	"Message-ID: <abc@foo.com>\r\n" +
	"\r\n" +
	"Hello\r\n"

func TestQuoteOrNIL(t *testing.T) {
	if QuoteOrNIL("") != "NIL" {
		t.Errorf("expected NIL for empty string")
	}
	got := QuoteOrNIL("Hello \"World\"")
	if got != "\"Hello \\\"World\\\"\"" {
		t.Errorf("unexpected quoted output: %s", got)
	}
}

func TestBuildEnvelope_DisplayNames(t *testing.T) {
	got := BuildEnvelope(displayNamesMsg)
	from := `(("Adam the Rusty" NIL "adam.bar" "foo.com"))`
	want := `ENVELOPE ("Tue, 23 Nov 2021 16:56:32 +0000" "Testing Email" ` +
		from + ` ` + from + ` ` + from + ` ` +
		`(("Adam Test" NIL "adam.test" "example.scot")) NIL NIL NIL "<abc@foo.com>")`
	if got != want {
		t.Errorf("unexpected envelope:\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildEnvelope_NoDisplayNames(t *testing.T) {
	raw := "From: adam.bar@foo.com\r\nTo: <adam.test@example.scot>\r\n\r\nbody"
	got := BuildEnvelope(raw)
	want := `ENVELOPE (NIL NIL ((NIL NIL "adam.bar" "foo.com")) ((NIL NIL "adam.bar" "foo.com")) ` +
		`((NIL NIL "adam.bar" "foo.com")) ((NIL NIL "adam.test" "example.scot")) NIL NIL NIL NIL)`
	if got != want {
		t.Errorf("unexpected envelope:\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildEnvelope_MissingAddresses(t *testing.T) {
	got := BuildEnvelope("Subject: orphan\r\n\r\n")
	want := `ENVELOPE (NIL "orphan" NIL NIL NIL NIL NIL NIL NIL NIL)`
	if got != want {
		t.Errorf("unexpected envelope:\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildEnvelope_CcList(t *testing.T) {
	raw := "From: a@x.org\r\nCc: B <b@y.org>, c@z.org\r\n\r\n"
	got := BuildEnvelope(raw)
	want := `ENVELOPE (NIL NIL ((NIL NIL "a" "x.org")) ((NIL NIL "a" "x.org")) ((NIL NIL "a" "x.org")) NIL ` +
		`(("B" NIL "b" "y.org") (NIL NIL "c" "z.org")) NIL NIL NIL)`
	if got != want {
		t.Errorf("unexpected envelope:\n got: %s\nwant: %s", got, want)
	}
}
