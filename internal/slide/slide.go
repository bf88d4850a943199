// Package slide defines the data structure for a single offer image.
package slide

import "fmt"

// DefaultAltText is the alt text given to slides supplied as bare strings.
const DefaultAltText = "Offer"

// Slide represents one offer image shown by the stories viewer.
type Slide struct {
	// Source is the location of the image asset (URL or path). Never empty.
	Source string `json:"source"`

	// AltText describes the image. Empty means a placeholder is generated
	// from the slide position.
	AltText string `json:"alt_text,omitempty"`
}

// Label returns the alt text for the slide at the given 0-based index,
// falling back to "Offer N".
func (s Slide) Label(index int) string {
	if s.AltText != "" {
		return s.AltText
	}
	return fmt.Sprintf("Offer %d", index+1)
}
