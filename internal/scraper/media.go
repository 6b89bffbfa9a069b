package scraper

import (
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/deusflow/feedharvest/internal/news"
)

// HasMedia reports whether item carries image metadata outside its HTML:
// media:content, media:thumbnail, itunes:image or a feed-level item image.
func HasMedia(item *gofeed.Item) bool {
	if item == nil {
		return false
	}
	if item.Image != nil && item.Image.URL != "" {
		return true
	}
	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		return true
	}
	media := item.Extensions["media"]
	return len(media["content"]) > 0 || len(media["thumbnail"]) > 0
}

// mediaImages collects images from the media namespace, itunes:image and the
// parsed item image, in that order.
func mediaImages(item *gofeed.Item, base string) []news.Image {
	var out []news.Image
	add := func(raw, alt, caption string) {
		if u := resolveImage(raw, base); u != "" {
			out = append(out, news.Image{URL: u, Alt: alt, Caption: caption})
		}
	}

	media := item.Extensions["media"]
	for _, e := range media["content"] {
		if isImageMedia(e) {
			add(e.Attrs["url"], mediaText(e, "title"), mediaText(e, "description"))
		}
	}
	for _, e := range media["thumbnail"] {
		add(e.Attrs["url"], "Article thumbnail", "")
	}
	// media:group wraps content elements in some feeds.
	for _, g := range media["group"] {
		for _, e := range g.Children["content"] {
			if isImageMedia(e) {
				add(e.Attrs["url"], mediaText(e, "title"), mediaText(e, "description"))
			}
		}
	}

	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		add(item.ITunesExt.Image, "", "")
	}
	if item.Image != nil && item.Image.URL != "" {
		add(item.Image.URL, item.Image.Title, "")
	}
	return out
}

func enclosureImages(item *gofeed.Item, base string) []news.Image {
	var out []news.Image
	for _, enc := range item.Enclosures {
		if enc == nil || !strings.HasPrefix(strings.ToLower(enc.Type), "image/") {
			continue
		}
		if u := NormalizeImageURL(enc.URL, base); u != "" {
			out = append(out, news.Image{URL: u, Alt: "Article image"})
		}
	}
	return out
}

func isImageMedia(e ext.Extension) bool {
	if strings.EqualFold(e.Attrs["medium"], "image") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(e.Attrs["type"]), "image/")
}

func mediaText(e ext.Extension, name string) string {
	if v := strings.TrimSpace(e.Attrs[name]); v != "" {
		return v
	}
	for _, c := range e.Children[name] {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	return ""
}
