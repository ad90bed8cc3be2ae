package core

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// HTML clutter left behind by Word copy-paste.
var (
	styleAttrRegex = regexp.MustCompile(`\s?style="[^"]*"`)
	fontOpenRegex  = regexp.MustCompile(`<font[^>]*>`)
	fontCloseRegex = regexp.MustCompile(`</font[\s]*>`)
)

// CleanupHTML strips inline style attributes and font tags.
func CleanupHTML(s string) string {
	s = styleAttrRegex.ReplaceAllString(s, "")
	s = fontOpenRegex.ReplaceAllString(s, "")
	s = fontCloseRegex.ReplaceAllString(s, "")
	return s
}

// SplitTags splits a comma separated tag list, trimming whitespace and
// dropping empty entries.
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// SplitName splits a full name on the first whitespace character.
// The surname is empty when there is no whitespace.
func SplitName(s string) (first, surname string) {
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return s, ""
	}
	_, size := utf8.DecodeRuneInString(s[idx:])
	return s[:idx], s[idx+size:]
}

var (
	nonSlugRegex  = regexp.MustCompile(`[^a-z0-9]+`)
	maxSegmentTry = 1000
)

// Slugify converts a title or path into a URL segment: accents removed,
// lowercased, runs of other characters collapsed to a single hyphen.
func Slugify(s string) string {
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(stripAccents, s); err == nil {
		s = out
	}
	s = strings.ToLower(s)
	s = nonSlugRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// AssignURLSegment gives e a URL segment from its title when it has none,
// appending -2, -3, ... until no sibling of the same type uses it. An entity
// saved without a title gets a "new-<type>" placeholder segment, which is
// replaced once a title is set.
func AssignURLSegment(ctx context.Context, b Finder, e *Entity) error {
	placeholder := "new-" + Slugify(string(e.Type))
	base := Slugify(e.Get(FieldTitle))

	current := e.Get(FieldURLSegment)
	if current != "" && (base == "" || !isPlaceholderSegment(current, placeholder)) {
		return nil
	}
	if base == "" {
		base = placeholder
	}

	candidate := base
	for i := 2; i <= maxSegmentTry; i++ {
		sibling, err := b.FindOne(ctx, e.Type, Where(FieldURLSegment, candidate).Under(e.ParentID))
		if err != nil {
			return err
		}
		if sibling == nil || sibling.ID == e.ID {
			e.Set(FieldURLSegment, candidate)
			return nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Errorf("no free URL segment for %q", base)
}

// isPlaceholderSegment reports whether segment is placeholder or one of its
// numbered variants.
func isPlaceholderSegment(segment, placeholder string) bool {
	if segment == placeholder {
		return true
	}
	n, ok := strings.CutPrefix(segment, placeholder+"-")
	if !ok || n == "" {
		return false
	}
	_, err := strconv.Atoi(n)
	return err == nil
}
