package timeline

import "testing"

func TestSameResource(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"file:///repo/a.go", "file:///repo/a.go", true},
		{"FILE:///repo/./a.go", "file:///repo/a.go", true},
		{"file:///repo/a.go", "git:///repo/a.go", true},
		{"git:///repo/a.go?ref=HEAD", "file:///repo/a.go", true},
		{"file:///repo/a.go", "file:///repo/b.go", false},
		{"https://example.com/repo/a.go", "file:///repo/a.go", false},
		{"", "", true},
		{"", "file:///a", false},
	}
	for _, c := range cases {
		if got := sameResource(c.a, c.b); got != c.want {
			t.Errorf("sameResource(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestScheme(t *testing.T) {
	if got := scheme("Output:channel"); got != "output" {
		t.Errorf("scheme = %q", got)
	}
}
