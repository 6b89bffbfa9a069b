package news

import (
	"math"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func article(title, url string, at time.Time) Article {
	a := Article{Title: title, URL: url, PublishedAt: at, Author: "Unknown"}
	a.EnsureKeys()
	return a
}

func TestCompare_ExactURL(t *testing.T) {
	d := NewDetector()
	a := article("One title", "https://a.example/x", baseTime)
	b := article("Totally different", "https://a.example/x", baseTime.Add(90*24*time.Hour))

	v := d.Compare(a, b)
	if !v.IsDuplicate || v.Reason != ReasonExactURL || v.Similarity != 1.0 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestCompare_ContentHash(t *testing.T) {
	d := NewDetector()
	a := article("Gateway launch!", "https://a.example/x", baseTime)
	b := article("gateway   LAUNCH", "https://b.example/y", baseTime.Add(72*time.Hour))
	if a.ContentHash != b.ContentHash {
		t.Fatalf("expected equal hashes after normalization")
	}

	v := d.Compare(a, b)
	if !v.IsDuplicate || v.Reason != ReasonContentHash || v.Similarity != 1.0 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestCompare_TitleWindow(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name string
		gap  time.Duration
		want bool
	}{
		{"two hours", 2 * time.Hour, true},
		{"exactly 24h", 24 * time.Hour, true},
		{"negative 24h", -24 * time.Hour, true},
		{"just over 24h", 24*time.Hour + time.Second, false},
		{"30 hours", 30 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := article("Sensor Breakthrough", "https://a.example/x", baseTime)
			b := article("Sensor Breakthru", "https://b.example/y", baseTime.Add(tt.gap))
			v := d.Compare(a, b)
			if v.IsDuplicate != tt.want {
				t.Fatalf("IsDuplicate = %v, want %v (%+v)", v.IsDuplicate, tt.want, v)
			}
			if tt.want && v.Reason != ReasonTitleSimilarAt {
				t.Errorf("reason = %q", v.Reason)
			}
			if v.Similarity < 0.8 {
				t.Errorf("similarity = %f, want >= 0.8", v.Similarity)
			}
		})
	}
}

func TestCompare_NotDuplicateReportsSimilarity(t *testing.T) {
	d := NewDetector()
	a := article("LoRaWAN network expands", "https://a.example/1", baseTime)
	b := article("Chip shortage easing", "https://b.example/2", baseTime)
	v := d.Compare(a, b)
	if v.IsDuplicate {
		t.Fatalf("expected not duplicate: %+v", v)
	}
	if v.Similarity <= 0 || v.Similarity >= 0.8 {
		t.Errorf("similarity = %f, want in (0, 0.8)", v.Similarity)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"sensor breakthrough", "sensor breakthru"},
		{"", "abc"},
		{"kitten", "sitting"},
		{"ünïcode títle", "unicode title"},
	}
	for _, p := range pairs {
		ab, ba := Similarity(p[0], p[1]), Similarity(p[1], p[0])
		if math.Abs(ab-ba) > 1e-12 {
			t.Errorf("Similarity(%q,%q)=%f != %f", p[0], p[1], ab, ba)
		}
	}
	if got := Similarity("", ""); got != 1.0 {
		t.Errorf("empty similarity = %f", got)
	}
	if got := Similarity("kitten", "sitting"); math.Abs(got-4.0/7.0) > 1e-9 {
		t.Errorf("kitten/sitting = %f, want %f", got, 4.0/7.0)
	}
}

func TestPartition_LeaderByScanOrder(t *testing.T) {
	d := NewDetector()
	first := article("Sensor Breakthrough", "https://a.example/x", baseTime)
	first.RelevanceScore = 0.6
	second := article("Sensor Breakthru", "https://b.example/y", baseTime.Add(2*time.Hour))
	second.RelevanceScore = 0.9
	other := article("Unrelated smart meter rollout", "https://c.example/z", baseTime)

	p := d.Partition([]Article{first, second, other})

	if len(p.Unique) != 2 || len(p.Duplicates) != 1 {
		t.Fatalf("unique=%d duplicates=%d", len(p.Unique), len(p.Duplicates))
	}
	dup := p.Duplicates[0]
	if dup.URL != second.URL || dup.DuplicateReason != ReasonTitleSimilarAt {
		t.Fatalf("unexpected duplicate: %+v", dup)
	}
	if len(p.Groups) != 1 {
		t.Fatalf("groups = %d", len(p.Groups))
	}
	g := p.Groups[0]
	if g.Leader.URL != first.URL {
		t.Errorf("leader = %s, want scan-order first", g.Leader.URL)
	}
	if g.Best.URL != second.URL {
		t.Errorf("best = %s, want highest score", g.Best.URL)
	}
	if g.Leader.IsDuplicate {
		t.Error("leader must not be flagged")
	}
}

func TestPartition_BestTieBreaksOnRecency(t *testing.T) {
	d := NewDetector()
	a := article("Same", "https://a.example/1", baseTime)
	b := article("Same", "https://b.example/2", baseTime.Add(time.Hour))
	a.RelevanceScore, b.RelevanceScore = 0.7, 0.7

	p := d.Partition([]Article{a, b})
	if len(p.Groups) != 1 || p.Groups[0].Best.URL != b.URL {
		t.Fatalf("expected most recent as best, got %+v", p.Groups)
	}
}

func TestPartition_DoesNotMutateInput(t *testing.T) {
	d := NewDetector()
	in := []Article{
		article("A", "https://a.example/1", baseTime),
		article("B", "https://a.example/1", baseTime),
	}
	d.Partition(in)
	if in[1].IsDuplicate {
		t.Fatal("input slice was mutated")
	}
}

func TestPartition_AllOrdersUniqueFirst(t *testing.T) {
	d := NewDetector()
	in := []Article{
		article("A", "https://a.example/1", baseTime),
		article("A copy", "https://a.example/1", baseTime),
		article("Different story", "https://b.example/2", baseTime),
	}
	all := d.Partition(in).All()
	if len(all) != 3 || all[2].URL != "https://a.example/1" || !all[2].IsDuplicate {
		t.Fatalf("unexpected order: %+v", all)
	}
}

func TestMakeID_Deterministic(t *testing.T) {
	id1 := MakeID("https://a.example/x", "Title")
	id2 := MakeID("https://a.example/x", "Title")
	if id1 != id2 || len(id1) != 16 {
		t.Fatalf("ids %q %q", id1, id2)
	}
	if MakeID("https://a.example/x", "Other") == id1 {
		t.Fatal("expected different id for different title")
	}
}
