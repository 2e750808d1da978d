package pathutil

import "testing"

func TestResolveRelative(t *testing.T) {
	cases := []struct {
		base, rel, want string
	}{
		{"/root", "", "/root"},
		{"/", "", "/"},
		{"", "", "/"},
		{"/root", "..", "/"},
		{"/a/b", "..", "/a"},
		{"/a/b", "../c", "/a/c"},
		{"/root", "a/b", "/root/a/b"},
		{"/", "tmp", "/tmp"},
		{"/root", "/tmp", "/tmp"},
		{"/root", "/tmp/../var", "/var"},
	}

	for _, tc := range cases {
		if got := ResolveRelative(tc.base, tc.rel); got != tc.want {
			t.Errorf("ResolveRelative(%q, %q) = %q, want %q", tc.base, tc.rel, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		path, want string
	}{
		{"/tmp/../var", "/var"},
		{"/a/b/../c", "/a/c"},
		{"/..", "/"},
		{"/./root/.///a", "/root/a"},
	}

	for _, tc := range cases {
		if got := normalize(tc.path); got != tc.want {
			t.Errorf("normalize(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
