package pathsafety

import "testing"

func TestIsSafe(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/etc/passwd", false},
		{"../x", false},
		{"a/../b", false},
		{"a\x00b", false},
		{"", true},
		{".", true},
		{"./x", true},
		{".gitignore", true},
		{"a/b/c/d.txt", true},
	}

	for _, c := range cases {
		t.Run(c.path, func(t *testing.T) {
			got := IsSafe(c.path)
			if got != c.want {
				t.Fatalf("IsSafe(%q) = %v, want %v", c.path, got, c.want)
			}
		})
	}
}
