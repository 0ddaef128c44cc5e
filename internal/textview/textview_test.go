package textview

import (
	"errors"
	"testing"
)

func TestSub(t *testing.T) {
	v := New("hello, world")

	sub, err := v.Sub(7, 5)
	if err != nil {
		t.Fatalf("Sub(7, 5): %v", err)
	}
	if sub.String() != "world" {
		t.Errorf("Sub(7, 5) = %q, want %q", sub.String(), "world")
	}
	if sub.Offset() != 7 || sub.Len() != 5 {
		t.Errorf("offset/len = %d/%d, want 7/5", sub.Offset(), sub.Len())
	}

	inner, err := sub.Sub(1, 3)
	if err != nil {
		t.Fatalf("nested Sub: %v", err)
	}
	if inner.String() != "orl" || inner.Offset() != 8 {
		t.Errorf("nested Sub = %q@%d, want %q@8", inner.String(), inner.Offset(), "orl")
	}
}

func TestSub_OutOfRange(t *testing.T) {
	v := New("abc")

	cases := []struct {
		name   string
		off, n int
	}{
		{"negative offset", -1, 1},
		{"negative length", 0, -1},
		{"past end", 2, 2},
		{"offset past end", 4, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Sub(tc.off, tc.n)
			if !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("Sub(%d, %d) err = %v, want ErrOutOfRange", tc.off, tc.n, err)
			}
		})
	}

	if _, err := Slice("abc", 1, 3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Slice past end err = %v, want ErrOutOfRange", err)
	}
}

func TestUTFSub(t *testing.T) {
	// "é" is two bytes, the emoji four.
	v := New("aé😀b")

	sub, err := v.UTFSub(1, 2)
	if err != nil {
		t.Fatalf("UTFSub(1, 2): %v", err)
	}
	if sub.String() != "é😀" {
		t.Errorf("UTFSub(1, 2) = %q, want %q", sub.String(), "é😀")
	}
	if sub.Offset() != 1 || sub.Len() != 6 {
		t.Errorf("offset/len = %d/%d, want 1/6", sub.Offset(), sub.Len())
	}

	if _, err := v.UTFSub(3, 2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("UTFSub past end err = %v, want ErrOutOfRange", err)
	}
	if got := v.RuneCount(); got != 4 {
		t.Errorf("RuneCount = %d, want 4", got)
	}
}

func TestStartsWithAndIndexOf(t *testing.T) {
	v := New("xx hello hello").MustSub(3, 11)

	if !v.StartsWith("hel") {
		t.Error("StartsWith(hel) = false, want true")
	}
	if v.StartsWith("xx") {
		t.Error("StartsWith(xx) = true, want false")
	}
	if got := v.IndexOf("hello", 0); got != 0 {
		t.Errorf("IndexOf(hello, 0) = %d, want 0", got)
	}
	if got := v.IndexOf("hello", 1); got != 6 {
		t.Errorf("IndexOf(hello, 1) = %d, want 6", got)
	}
	if got := v.IndexOf("nope", 0); got != -1 {
		t.Errorf("IndexOf(nope) = %d, want -1", got)
	}
	if got := v.IndexOf("o", 99); got != -1 {
		t.Errorf("IndexOf past end = %d, want -1", got)
	}
}

func TestEqualHashCompare(t *testing.T) {
	a := New("foo bar").MustSub(4, 3)
	b := New("bar")
	c := New("baz")

	if !a.Equal(b) {
		t.Error("views over equal text should be equal")
	}
	if a.Hash() != b.Hash() {
		t.Error("views over equal text should hash equally")
	}
	if a.Equal(c) {
		t.Error("views over different text should differ")
	}
	if a.Compare(c) >= 0 {
		t.Errorf("Compare(bar, baz) = %d, want < 0", a.Compare(c))
	}
}

func TestApply(t *testing.T) {
	src := "whole string"
	whole := New(src)
	if got := whole.Apply(); got != src {
		t.Errorf("Apply() = %q, want %q", got, src)
	}

	part := whole.MustSub(0, 5)
	if got := part.Apply(); got != "whole" {
		t.Errorf("Apply() = %q, want %q", got, "whole")
	}
}

func TestConcat(t *testing.T) {
	v := New("hello world")
	a := v.MustSub(0, 5)
	b := v.MustSub(5, 6)

	joined, err := a.Concat(b)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if joined.String() != "hello world" {
		t.Errorf("Concat = %q", joined.String())
	}

	if _, err := b.Concat(a); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("reversed Concat err = %v, want ErrOutOfRange", err)
	}
}
