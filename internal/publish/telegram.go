package publish

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/deusflow/feedharvest/internal/news"
)

const (
	telegramAPIBase = "https://api.telegram.org"
	// Telegram rejects photo captions over 1024 characters.
	captionMaxRunes = 1000
)

// TelegramConfig posts each event to a chat or channel through the Bot API.
type TelegramConfig struct {
	Token        string `json:"token" yaml:"token"`
	ChatID       string `json:"chat_id" yaml:"chat_id"`
	APIBase      string `json:"api_base" yaml:"api_base"`
	AllowPreview bool   `json:"allow_preview" yaml:"allow_preview"`
}

type telegramPublisher struct {
	id     string
	cfg    TelegramConfig
	client *resty.Client
}

func newTelegramPublisher(_ context.Context, cfg PublisherConfig) (Publisher, error) {
	if cfg.Telegram == nil {
		return nil, fmt.Errorf("telegram configuration is missing")
	}
	return &telegramPublisher{
		id:     cfg.ID,
		cfg:    *cfg.Telegram,
		client: resty.New().SetTimeout(30 * time.Second).SetBaseURL(cfg.Telegram.APIBase),
	}, nil
}

func (p *telegramPublisher) ID() string { return p.id }

// Publish sends a photo with caption when the article has a featured image
// and a plain message otherwise.
func (p *telegramPublisher) Publish(ctx context.Context, evt Event) error {
	a := evt.Article
	text := formatArticle(a, true)

	method := "sendMessage"
	payload := map[string]any{
		"chat_id":                  p.cfg.ChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": !p.cfg.AllowPreview,
	}
	if a.FeaturedImage != nil && a.FeaturedImage.URL != "" {
		method = "sendPhoto"
		payload = map[string]any{
			"chat_id":    p.cfg.ChatID,
			"photo":      a.FeaturedImage.URL,
			"caption":    caption(a),
			"parse_mode": "HTML",
		}
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(fmt.Sprintf("/bot%s/%s", p.cfg.Token, method))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode())
	}
	return nil
}

// caption drops the excerpt rather than cutting through HTML markup.
func caption(a news.Article) string {
	if text := formatArticle(a, true); utf8.RuneCountInString(text) <= captionMaxRunes {
		return text
	}
	if text := formatArticle(a, false); utf8.RuneCountInString(text) <= captionMaxRunes {
		return text
	}
	return truncateRunes(html.EscapeString(a.Title), captionMaxRunes)
}

func formatArticle(a news.Article, withExcerpt bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📰 <b><a href=\"%s\">%s</a></b>\n", html.EscapeString(a.URL), html.EscapeString(a.Title))

	source := a.Source.Name
	if source == "" {
		source = a.Source.Domain
	}
	if a.Author != "" && a.Author != news.UnknownAuthor {
		source += " · " + a.Author
	}
	if source != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(source))
	}

	if withExcerpt && a.Excerpt != "" {
		fmt.Fprintf(&b, "\n%s\n", html.EscapeString(a.Excerpt))
	}

	if len(a.Categories) > 0 {
		tags := make([]string, 0, len(a.Categories))
		for _, c := range a.Categories {
			if tag := hashtag(c); tag != "" {
				tags = append(tags, tag)
			}
		}
		if len(tags) > 0 {
			fmt.Fprintf(&b, "\n%s", strings.Join(tags, " "))
		}
	}
	return strings.TrimSpace(b.String())
}

func hashtag(category string) string {
	var b strings.Builder
	for _, r := range category {
		switch {
		case r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r > 127:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
