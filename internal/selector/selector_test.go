package selector

import "testing"

func TestSelectAlwaysIncludesHomepage(t *testing.T) {
	out := Select("https://example.com/", nil, 12, 18, 0.12)
	if len(out) != 1 || out[0] != "https://example.com/" {
		t.Fatalf("Select with no candidates = %v, want just the homepage", out)
	}
}

func TestSelectCapsAtMaxPages(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 40; i++ {
		candidates = append(candidates, Candidate{
			URL:        "https://example.com/about/" + string(rune('a'+i)),
			Score:      30,
			Distillate: randomishText(i),
		})
	}
	out := Select("https://example.com/", candidates, 12, 18, 0.12)
	if len(out) > 18 {
		t.Fatalf("Select returned %d pages, want <= 18", len(out))
	}
}

func TestSelectAtMostOnePDF(t *testing.T) {
	candidates := []Candidate{
		{URL: "https://example.com/brand-overview.pdf", Score: 30, Distillate: randomishText(1)},
		{URL: "https://example.com/corporate-overview.pdf", Score: 30, Distillate: randomishText(2)},
	}
	out := Select("https://example.com/", candidates, 12, 18, 0.12)
	pdfCount := 0
	for _, u := range out {
		if len(u) > 4 && u[len(u)-4:] == ".pdf" {
			pdfCount++
		}
	}
	if pdfCount > 1 {
		t.Fatalf("Select admitted %d PDFs, want at most 1", pdfCount)
	}
}

func randomishText(seed int) string {
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta", "iota", "kappa", "lambda", "mu", "nu", "xi"}
	out := ""
	for i := 0; i < 20; i++ {
		out += words[(i+seed)%len(words)] + " "
	}
	return out
}
