package version

import "testing"

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.1", "1.0.0", 1},
		{"1.0", "1.0.0", 0},
		{"2", "1.9.9", 1},
		{"1.2.3", "1.2.3", 0},
		{"1.2.3", "1.10.0", -1},
		{"0.9", "1", -1},
		{"", "0.0.0", 0},
		{"1.x.2", "1.0.2", 0},
	}
	for _, tc := range cases {
		if got := Compare(tc.a, tc.b); got != tc.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCompareAntisymmetric(t *testing.T) {
	versions := []string{"", "0", "1", "1.0", "1.0.0", "1.0.1", "1.1", "1.9.9", "2", "10.0", "2.0.0.1"}
	for _, a := range versions {
		for _, b := range versions {
			if Compare(a, b) != -Compare(b, a) {
				t.Errorf("Compare(%q,%q)=%d but Compare(%q,%q)=%d", a, b, Compare(a, b), b, a, Compare(b, a))
			}
		}
	}
}

func TestNewer(t *testing.T) {
	if !Newer("1.0.1", "1.0.0") {
		t.Error("1.0.1 should be newer than 1.0.0")
	}
	if Newer("1.0", "1.0.0") {
		t.Error("equal versions are not newer")
	}
	if Newer("1.0.0", "1.0.1") {
		t.Error("older version reported newer")
	}
}
