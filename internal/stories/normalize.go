// Package stories turns a raw, externally supplied slide list into a clean
// sequence of slides.
package stories

import (
	"reflect"
	"strings"
	"sync"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/agleyzer/linkinbio/internal/slide"
)

// Normalize validates and canonicalizes a raw slide list.
//
// The input may be any slice or array. Each element is either a string (the
// image source, with the default alt text) or a record with a string source
// and an optional string alt text. Records may be maps keyed by
// "source"/"src" and "altText"/"alt", or slide.Slide values. Elements without
// a usable single-line source are dropped; order is preserved. Anything that is not a
// sequence yields an empty result.
func Normalize(raw any) []slide.Slide {
	if raw == nil {
		return []slide.Slide{}
	}

	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return []slide.Slide{}
	}

	result := make([]slide.Slide, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		if s, ok := normalizeEntry(v.Index(i).Interface()); ok {
			result = append(result, s)
		}
	}

	return result
}

// normalizeEntry converts one raw element. The bool is false for malformed
// entries.
func normalizeEntry(entry any) (slide.Slide, bool) {
	switch e := entry.(type) {
	case nil:
		return slide.Slide{}, false
	case string:
		return build(e, slide.DefaultAltText)
	case slide.Slide:
		return build(e.Source, e.AltText)
	case *slide.Slide:
		if e == nil {
			return slide.Slide{}, false
		}
		return build(e.Source, e.AltText)
	case map[string]any:
		return fromFields(func(k string) (any, bool) {
			v, ok := e[k]
			return v, ok
		})
	case map[string]string:
		return fromFields(func(k string) (any, bool) {
			v, ok := e[k]
			return v, ok
		})
	case map[any]any:
		return fromFields(func(k string) (any, bool) {
			v, ok := e[k]
			return v, ok
		})
	default:
		return slide.Slide{}, false
	}
}

// fromFields reads source and alt text from a record, accepting both the
// long and short field names.
func fromFields(get func(string) (any, bool)) (slide.Slide, bool) {
	src, ok := lookup(get, "source", "src")
	if !ok {
		return slide.Slide{}, false
	}
	source, ok := src.(string)
	if !ok {
		return slide.Slide{}, false
	}

	alt := ""
	if a, ok := lookup(get, "altText", "alt"); ok {
		// A non-string alt text is ignored rather than rejecting the slide.
		alt, _ = a.(string)
	}

	return build(source, alt)
}

func lookup(get func(string) (any, bool), keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := get(k); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func build(source, alt string) (slide.Slide, bool) {
	source = strings.TrimSpace(source)
	if source == "" || strings.ContainsAny(source, "\r\n") {
		return slide.Slide{}, false
	}
	return slide.Slide{Source: source, AltText: alt}, true
}

// Cache memoizes Normalize against the structural hash of the last raw input,
// so the same list is only normalized once.
type Cache struct {
	mu     sync.Mutex
	key    uint64
	valid  bool
	slides []slide.Slide

	// computed counts cache misses.
	computed int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Normalize returns the normalized slides for raw, reusing the previous
// result when raw hashes to the same key. Inputs that cannot be hashed are
// normalized on every call.
func (c *Cache) Normalize(raw any) []slide.Slide {
	key, err := hashstructure.Hash(raw, hashstructure.FormatV2, nil)
	if err != nil {
		return Normalize(raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.key == key {
		return clone(c.slides)
	}

	c.slides = Normalize(raw)
	c.computed++
	c.key = key
	c.valid = true

	return clone(c.slides)
}

// clone keeps callers from mutating the cached slice.
func clone(slides []slide.Slide) []slide.Slide {
	out := make([]slide.Slide, len(slides))
	copy(out, slides)
	return out
}
