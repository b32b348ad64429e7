package version

import (
	"testing"

	"github.com/Masterminds/semver/v3"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Spec
		wantErr bool
	}{
		{"latest", Latest, false},
		{"LATEST", Latest, false},
		{"", Latest, false},
		{"  latest  ", Latest, false},
		{"17", LatestInMajor(17), false},
		{"17.2", LatestInMajorMinor(17, 2), false},
		{"17.2.1", Exact(17, 2, 1), false},
		{"v17.2.1", Exact(17, 2, 1), false},
		{"=17.2.1", Exact(17, 2, 1), false},
		{"=17", Spec{}, true},
		{"=17.2", Spec{}, true},
		{"17.2.1.0", Spec{}, true},
		{"seventeen", Spec{}, true},
		{"17.x", Spec{}, true},
		{"-1", Spec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSpecString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec Spec
		want string
	}{
		{Latest, "latest"},
		{LatestInMajor(16), "16"},
		{LatestInMajorMinor(16, 4), "16.4"},
		{Exact(16, 4, 2), "16.4.2"},
	}

	for _, tt := range tests {
		if got := tt.spec.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseStringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"latest", "17", "17.2", "17.2.1"} {
		spec, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", input, err)
		}
		reparsed, err := Parse(spec.String())
		if err != nil {
			t.Fatalf("Parse(String()) error: %v", err)
		}
		if reparsed != spec {
			t.Errorf("round trip changed spec: %+v -> %+v", spec, reparsed)
		}
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	v := semver.MustParse("16.4.2")

	tests := []struct {
		spec Spec
		want bool
	}{
		{Latest, true},
		{LatestInMajor(16), true},
		{LatestInMajor(15), false},
		{LatestInMajorMinor(16, 4), true},
		{LatestInMajorMinor(16, 3), false},
		{Exact(16, 4, 2), true},
		{Exact(16, 4, 1), false},
	}

	for _, tt := range tests {
		if got := tt.spec.Matches(v); got != tt.want {
			t.Errorf("%s.Matches(16.4.2) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}
