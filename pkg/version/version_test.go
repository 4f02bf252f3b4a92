package version

import "testing"

func TestBuildString(t *testing.T) {
	tests := []struct {
		name   string
		b      Build
		want   string
		banner string
	}{
		{"dev", Build{}, "dev", "quicchat dev"},
		{"commit", Build{Commit: "abc1234", Date: "2026-01-01"}, "abc1234", "quicchat abc1234 built 2026-01-01"},
		{"dirty", Build{Commit: "abc1234", Dirty: true}, "abc1234-dirty", "quicchat abc1234-dirty"},
		{"tag", Build{Tag: "v1.0.0", Commit: "abc1234", Date: "2026-01-01"}, "v1.0.0", "quicchat v1.0.0 (abc1234) built 2026-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := tt.b.Banner("quicchat"); got != tt.banner {
				t.Errorf("Banner() = %q, want %q", got, tt.banner)
			}
		})
	}
}

func TestCurrentIsStable(t *testing.T) {
	if Current() != Current() {
		t.Fatal("Current changed between calls")
	}
}
