package sources

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_KnownDomains(t *testing.T) {
	tbl := Default()

	tests := []struct {
		domain  string
		name    string
		trusted bool
	}{
		{"iottechnews.com", "IoT Tech News", true},
		{"www.iot-now.com", "IoT Now", true},
		{"iot-now.com", "IoT Now", true},
		{"iotbusinessnews.com", "IoT Business News", false},
		{"iotinsider.com", "IoT Insider", false},
		{"unknown.example", "unknown.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			if got := tbl.DisplayName(tt.domain); got != tt.name {
				t.Errorf("DisplayName = %q, want %q", got, tt.name)
			}
			if got := tbl.Trusted(tt.domain); got != tt.trusted {
				t.Errorf("Trusted = %v, want %v", got, tt.trusted)
			}
		})
	}
}

func TestGet_FillsDefaults(t *testing.T) {
	tbl := Default()

	p := tbl.Get("iotinsider.com")
	if len(p.ImageSelectors) == 0 || p.Placeholder.URL == "" {
		t.Fatalf("expected defaults to be filled: %+v", p)
	}
	if p.Team() != "IoT Insider Team" {
		t.Errorf("Team = %q", p.Team())
	}

	unknown := tbl.Get("blog.example")
	if unknown.Name != "blog.example" || unknown.Team() != "blog.example Team" {
		t.Errorf("unexpected fallback profile: %+v", unknown)
	}

	biz := tbl.Get("iotbusinessnews.com")
	if biz.Team() != "IoT Business News Team" {
		t.Errorf("Team = %q", biz.Team())
	}
}

func TestLoadFile_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.yaml")
	body := `domains:
  www.iottechnews.com:
    name: Tech News Override
    trusted: false
  newsite.example:
    name: New Site
    trusted: true
    image_selectors: [".hero img"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	tbl := Default()
	if err := tbl.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if got := tbl.DisplayName("iottechnews.com"); got != "Tech News Override" {
		t.Errorf("override name = %q", got)
	}
	if tbl.Trusted("iottechnews.com") {
		t.Error("override should clear trust")
	}
	p := tbl.Get("newsite.example")
	if !tbl.Trusted("newsite.example") || len(p.ImageSelectors) != 1 {
		t.Errorf("new site profile = %+v", p)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if err := Default().LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
