package logio

import (
	"bytes"
	"testing"
)

func TestVerboseGate(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Verbosef("compiled %s", "f")
	if buf.Len() != 0 {
		t.Fatalf("quiet logger wrote %q", buf.String())
	}

	New(&buf, true).Verbosef("compiled %s", "f")
	if got := buf.String(); got != "[numfn] compiled f\n" {
		t.Fatalf("got %q", got)
	}
}

func TestErrorsIgnoreVerbosity(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.Errorf("bad %d", 1)
	l.Warnf("careful")
	want := "error: bad 1\n[numfn] warning: careful\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
	if IsTerminal(&buf) {
		t.Error("a buffer is not a terminal")
	}
}
