package query

import "testing"

func TestTokenUnits(t *testing.T) {
	cases := []struct {
		wei  string
		want string
	}{
		{"1000000000000000000", "1"},
		{"2500000000000000000000", "2500"},
		{"500000000000000000", "0.5"},
		{"0", "0"},
		{"-1000000000000000000", "-1"},
		{"1", "0.000000000000000001"},
	}

	for _, c := range cases {
		if got := tokenUnits(c.wei); got != c.want {
			t.Errorf("tokenUnits(%s): got %s, want %s", c.wei, got, c.want)
		}
	}
}

func TestTokenUnitsPassesThroughGarbage(t *testing.T) {
	if got := tokenUnits("not-a-number"); got != "not-a-number" {
		t.Errorf("got %s, want input unchanged", got)
	}
}
