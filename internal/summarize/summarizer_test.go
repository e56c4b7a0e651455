package summarize

import "testing"

func TestIsSilent(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"NO_REPLY", true},
		{"  NO_REPLY  ", true},
		{"no_reply", true},
		{"NO_REPLY but also notes", false},
		{"", false},
		{"Discussed deployment.", false},
	}
	for _, c := range cases {
		if got := IsSilent(c.in); got != c.want {
			t.Errorf("IsSilent(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
