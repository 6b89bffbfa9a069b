package scraper

import (
	"net/url"
	"regexp"
	"strings"
)

var imageExtension = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|svg|bmp|avif)(\?.*)?$`)

var imageHostPatterns = []string{
	"/wp-content/uploads/",
	"/images/",
	"/image/",
	"/media/",
	"/assets/",
	"/uploads/",
	"cdn.",
	"img.",
	"images.",
	"placeholder",
	"gravatar",
	"amazonaws.com",
	"cloudinary",
}

// NormalizeImageURL makes raw absolute. Protocol-relative URLs get https and
// relative ones are resolved against base. It returns "" when raw cannot be
// made absolute.
func NormalizeImageURL(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}

	if base == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	return b.ResolveReference(u).String()
}

// IsValidImageURL reports whether raw is an absolute http(s) URL that looks
// like an image by extension or by a known image hosting path.
func IsValidImageURL(raw string) bool {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	if imageExtension.MatchString(u.Path) || imageExtension.MatchString(raw) {
		return true
	}
	lower := strings.ToLower(raw)
	for _, p := range imageHostPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// resolveImage normalizes and validates raw, returning "" when unusable.
func resolveImage(raw, base string) string {
	abs := NormalizeImageURL(raw, base)
	if abs == "" || !IsValidImageURL(abs) {
		return ""
	}
	return abs
}
