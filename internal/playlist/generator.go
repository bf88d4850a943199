// Package playlist renders a stories list as an M3U media playlist, the same
// format the parser reads, so a normalized list can be exported and served
// again.
package playlist

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agleyzer/linkinbio/internal/slide"
)

// Generate creates an M3U media playlist with one entry per slide. Each
// entry lasts duration and carries the slide's alt text as its title.
func Generate(slides []slide.Slide, duration time.Duration) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("duration must be positive")
	}

	seconds := duration.Seconds()

	var b strings.Builder

	// Write header
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(seconds))))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	for _, s := range slides {
		b.WriteString(fmt.Sprintf("#EXTINF:%.3f,%s\n", seconds, title(s.AltText)))
		b.WriteString(s.Source)
		b.WriteString("\n")
	}

	b.WriteString("#EXT-X-ENDLIST\n")

	return b.String(), nil
}

// title keeps an alt text on a single playlist line.
func title(alt string) string {
	return strings.Join(strings.Fields(alt), " ")
}
