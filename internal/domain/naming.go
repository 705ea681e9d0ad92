package domain

import (
	"regexp"
	"strings"
)

// MaxSlugLength caps slug length so "store-<slug>" stays a valid
// namespace name and "<slug>.<domain>" a valid DNS label.
const MaxSlugLength = 40

// NamespacePrefix is prepended to the slug to form the store namespace.
const NamespacePrefix = "store-"

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace   = regexp.MustCompile(`\s+`)
	slugHyphenRuns   = regexp.MustCompile(`-+`)
)

// GenerateSlug derives a DNS-safe slug from a display name.
func GenerateSlug(name string) string {
	s := strings.TrimSpace(strings.ToLower(name))
	s = slugInvalidChars.ReplaceAllString(s, "")
	s = slugWhitespace.ReplaceAllString(s, "-")
	s = slugHyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxSlugLength {
		s = strings.TrimRight(s[:MaxSlugLength], "-")
	}
	return s
}

// GenerateNamespace returns the namespace owned by the store with slug.
func GenerateNamespace(slug string) string {
	return NamespacePrefix + slug
}
