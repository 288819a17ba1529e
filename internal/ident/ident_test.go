package ident

import "testing"

func TestNew(t *testing.T) {
	cases := []struct {
		kind, name, path string
		start            uint
		want             string
	}{
		{"function", "greet", "main.py", 42, "function:greet@main.py:42"},
		{"Function", "greet", "main.py", 42, "function:greet@main.py:42"},
		{"module", "app", "pkg/app.py", 0, "module:app@pkg/app.py:0"},
		{"call", "foo(a,  b)", "m.py", 7, "call:foo(a, b)@m.py:7"},
		{"variable", "  x  ", "m.py", 3, "variable:x@m.py:3"},
	}
	for _, c := range cases {
		if got := New(c.kind, c.name, c.path, c.start); string(got) != c.want {
			t.Errorf("New(%q, %q, %q, %d) = %s, want %s", c.kind, c.name, c.path, c.start, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"foo", "foo"},
		{"foo(\n    bar,\n    baz\n)", "foo( bar, baz )"},
		{"a  = [1,   2]", "a = [1, 2]"},
		{"\t x \t", "x"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHasKind(t *testing.T) {
	id := New("function", "f", "m.py", 0)
	if !HasKind(id, "function") {
		t.Errorf("HasKind(%s, function) = false", id)
	}
	if HasKind(id, "class") {
		t.Errorf("HasKind(%s, class) = true", id)
	}
}

func TestNew_Deterministic(t *testing.T) {
	a := New("class", "Widget", "ui/widget.py", 120)
	b := New("class", "Widget", "ui/widget.py", 120)
	if a != b {
		t.Errorf("identical inputs produced %s and %s", a, b)
	}
	c := New("class", "Widget", "ui/widget.py", 121)
	if a == c {
		t.Error("differing start bytes must produce distinct IDs")
	}
}
