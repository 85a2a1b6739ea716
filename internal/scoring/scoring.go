// Package scoring implements the Link Scorer / Filter (C3): keyword
// tier scoring, the single closed negative-keyword set, and the
// non-HTML-extension/shallow-path bonuses and penalties of §4.3.
package scoring

import (
	"regexp"
	"strings"
)

// tier is one priority level of the keyword ladder. The first tier
// (in Critical→Low order) with a matching pattern wins; tiers never
// stack with each other, though the language/shallow-path/extension
// adjustments stack on top of whichever tier matched.
type tier struct {
	name     string
	patterns []*regexp.Regexp
	score    int
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// negativeRegex is the one closed multi-language negative-keyword set
// (§9 open question #3: applied uniformly, every call site, no
// exceptions), grounded verbatim on the reference scanner's
// NEGATIVE_REGEX list.
var negativeRegex = compileAll(
	// Account management
	`\b(log(in|out)?|sign(in|up)|register|account|my-account)\b`,
	`\b(anmelden|abmelden|registrieren|konto)\b`,
	`\b(iniciar-sesion|cerrar-sesion|crear-cuenta|cuenta)\b`,
	// Legal & compliance
	`\b(impressum|imprint|legal|disclaimer|compliance|datenschutz|data-protection|privacy|terms|cookies?|policy|governance|bylaws|tax[-_]strategy)\b`,
	`\b(agb|bedingungen|rechtliches|politica-de-privacidad|aviso-legal|terminos|condiciones)\b`,
	// Subscriptions & marketing
	`\b(newsletter|subscribe|subscription|unsubscribe|boletin|suscripcion|darse-de-baja)\b`,
	// HR & careers
	`\b(jobs?|career(s)?|vacancies|internships?|apply|karriere|stellenangebote|bewerbung|praktikum|empleo|trabajo|vacantes|postulaciones|reclutamiento)\b`,
	// E-commerce & shopping
	`\b(basket|cart|checkout|shop|store|ecommerce|wishlist|warenkorb|kaufen|bestellen|einkaufen|carrito|tienda|comprar|pago|pedido)\b`,
	// Website tools & technical pages
	`\b(calculator|tool|search|filter|compare|rechner|suche|vergleich|calculadora|buscar|comparar|filtro)\b`,
	`\b(404|not-found|error|redirect|sitemap|robots|tracking|rss|weiterleitung|umleitung|redireccion|mapa-del_sitio|seguimiento)\b`,
	// Customer support & help
	`\b(faq(s)?|help|support|contact|customer[-_]service|knowledge[-_]base)\b`,
	// Developer & partner portals
	`\b(api|developer(s)?|sdk|docs|documentation|partner(s)?|supplier(s)?|vendor(s)?|affiliate(s)?|portal)\b`,
	// Location finders
	`\b(locations?|store[-_]finder|dealer[-_]locator|find[-_]a[-_]store)\b`,
	// Media & asset libraries
	`\b(gallery|media[-_]kit|brand[-_]assets)\b`,
	// Accessibility
	`\b(accessibility|wcag)\b`,
	// Press releases & content marketing
	`\b(press[-_]release(s)?)\b`,
	`\b(news|events|blogs?|articles?|updates?|media|press|spotlight|stories)\b`,
	`\b(whitepapers?|webinars?|case[-_]stud(y|ies)|customer[-_]stor(y|ies))\b`,
	`\b(resources?|insights?|downloads?)\b`,
	// Investor relations & financial reporting
	`\b(takeover|capital[-_]increase|webcast|publication|report|finances?|annual[-_]report|quarterly[-_]report|balance[-_]sheet|proxy|prospectus|statement|filings|investor[-_]deck|shareholder(s)?|stock|sec[-_]filing(s)?|financials?)\b`,
)

var tiers = []tier{
	{name: "critical", score: 30, patterns: compileAll(`\b(brand|purpose|values|strategy|products|services|operations)\b`)},
	{name: "high", score: 20, patterns: compileAll(`company`, `about`, `story`, `mission`, `vision`, `culture`, `who[-_]we[-_]are`, `what[-_]we[-_]do`, `investors?`)},
	{name: "medium", score: 10, patterns: compileAll(`solutions`, `pipeline`, `research`, `innovation`, `capabilities`, `industries`, `technology`)},
	{name: "low", score: 5, patterns: compileAll(`leadership`, `team`, `management`, `history`, `sustainability`, `responsibility`, `esg`)},
}

var languagePatterns = compileAll(`/en/`, `lang=en`)

var languageNames = map[string]struct{}{
	"english": {}, "español": {}, "deutsch": {}, "français": {}, "português": {},
	"en": {}, "es": {}, "de": {}, "fr": {}, "pt": {},
}

var ignoredExtensions = []string{
	".pdf", ".zip", ".jpg", ".jpeg", ".png", ".gif", ".docx", ".xlsx", ".pptx", ".mp3", ".mp4",
}

// Score computes the relevance score of a candidate link per §4.3.
// The highest matching keyword tier (Critical→Low) wins; tiers do not
// stack. Language/shallow-path bonuses and the negative/extension
// penalties stack on top of that.
func Score(linkURL, linkText string) int {
	score := 0
	lowerText := strings.ToLower(linkText)
	combined := linkURL + " " + lowerText

	if _, bare := languageNames[lowerText]; bare {
		score -= 20
	}

	for _, t := range tiers {
		matched := false
		for _, p := range t.patterns {
			if p.MatchString(combined) {
				score += t.score
				matched = true
				break
			}
		}
		if matched {
			break
		}
	}

	for _, p := range negativeRegex {
		if p.MatchString(combined) {
			score -= 50
			break
		}
	}

	for _, p := range languagePatterns {
		if p.MatchString(combined) {
			score += 10
			break
		}
	}

	pathDepth := strings.Count(linkURL, "/") - 2
	if pathDepth <= 2 {
		score += 5
	}

	lowerURL := strings.ToLower(linkURL)
	for _, ext := range ignoredExtensions {
		if strings.HasSuffix(lowerURL, ext) {
			score -= 100
			break
		}
	}

	return score
}

// IsVetoed reports whether a link must be dropped before ranking
// altogether. Only pagination (page=N) and search URLs (s, q or query
// parameters, /search paths) are vetoed; locale-variant mirrors and
// other boilerplate pages are not vetoed here.
var vetoPatterns = compileAll(
	`[?&]page=\d+`,
	`[?&](s|q|query)=`,
	`/search/?$`,
	`/search\?`,
)

func IsVetoed(linkURL string) bool {
	for _, p := range vetoPatterns {
		if p.MatchString(linkURL) {
			return true
		}
	}
	return false
}
