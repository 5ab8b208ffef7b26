package interpreter

import (
	"bytes"
	"sort"
	"testing"
)

func TestBoundedBuffer(t *testing.T) {
	b := newBoundedBuffer(5)
	n, err := b.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	n, err = b.Write([]byte("defgh"))
	if n != 5 || err != nil {
		t.Fatalf("Write over limit = %d, %v; must report full length", n, err)
	}
	if b.String() != "abcde" {
		t.Errorf("String() = %q, want abcde", b.String())
	}
	if !b.Truncated() {
		t.Error("Truncated() = false after overflow")
	}
}

func TestBoundedBufferTrimsPartialRune(t *testing.T) {
	b := newBoundedBuffer(4)
	b.Write([]byte("abcé")) // é is two bytes, only the first fits

	if got := b.String(); got != "abc" {
		t.Errorf("String() = %q, want abc", got)
	}
}

func TestSwitchWriterDetached(t *testing.T) {
	var w switchWriter
	if n, err := w.Write([]byte("dropped")); n != 7 || err != nil {
		t.Errorf("Write without target = %d, %v", n, err)
	}

	var buf bytes.Buffer
	w.set(&buf)
	w.Write([]byte("kept"))
	w.set(nil)
	w.Write([]byte("dropped"))

	if buf.String() != "kept" {
		t.Errorf("buf = %q, want kept", buf.String())
	}
}

func TestShared(t *testing.T) {
	s := NewShared()
	s.Set("b", 2)
	s.Set("a", "one")

	if got := s.Get("a"); got != "one" {
		t.Errorf("Get(a) = %v", got)
	}
	if got := s.Keys(); !sort.StringsAreSorted(got) || len(got) != 2 {
		t.Errorf("Keys() = %v, want two sorted keys", got)
	}
	if snap := s.Snapshot(); snap["b"] != "2" {
		t.Errorf("Snapshot()[b] = %q, want 2", snap["b"])
	}

	s.Delete("a")
	if s.Get("a") != nil {
		t.Error("Get after Delete should be nil")
	}
}
