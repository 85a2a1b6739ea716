package urlpolicy

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"plain https", "https://example.com/", false},
		{"loopback", "http://127.0.0.1/", true},
		{"localhost name", "http://localhost/", true},
		{"aws metadata", "http://169.254.169.254/latest/meta-data", true},
		{"internal suffix", "http://svc.internal/", true},
		{"ftp scheme", "ftp://example.com/", true},
		{"too long", "https://example.com/" + string(make([]byte, 2100)), true},
		{"private ip", "http://10.0.0.5/", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Validate(c.url)
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", c.url, err, c.wantErr)
			}
		})
	}
}

func TestRootWord(t *testing.T) {
	cases := map[string]string{
		"https://www.omv.co.uk/about": "omv",
		"https://omv.com/":            "omv",
		"https://omv.at/":             "omv",
		"https://sub.example.org/":    "example",
	}
	for in, want := range cases {
		if got := RootWord(in); got != want {
			t.Errorf("RootWord(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSameRootWordDomain(t *testing.T) {
	if !SameRootWordDomain("https://omv.at/", "https://omv.com/") {
		t.Fatal("expected omv.at and omv.com to share a root word")
	}
	if SameRootWordDomain("https://omv.at/", "https://shell.com/") {
		t.Fatal("expected omv.at and shell.com to differ")
	}
}

func TestIsLocaleVariant(t *testing.T) {
	if !IsLocaleVariant("/en/about") {
		t.Fatal("expected /en/about to be a locale variant")
	}
	if !IsLocaleVariant("/de-DE/products") {
		t.Fatal("expected /de-DE/products to be a locale variant")
	}
	if IsLocaleVariant("/engineering/about") {
		t.Fatal("did not expect /engineering/about to be a locale variant")
	}
}
