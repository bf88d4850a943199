package slide

import "testing"

func TestLabel(t *testing.T) {
	tests := []struct {
		name  string
		slide Slide
		index int
		want  string
	}{
		{name: "explicit alt text", slide: Slide{Source: "a.jpg", AltText: "Burger"}, index: 0, want: "Burger"},
		{name: "placeholder is 1-based", slide: Slide{Source: "a.jpg"}, index: 0, want: "Offer 1"},
		{name: "placeholder for later slide", slide: Slide{Source: "c.jpg"}, index: 2, want: "Offer 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.slide.Label(tt.index); got != tt.want {
				t.Errorf("Label(%d) = %q, want %q", tt.index, got, tt.want)
			}
		})
	}
}
