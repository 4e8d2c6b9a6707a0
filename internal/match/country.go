package match

import (
	"github.com/biter777/countries"
	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// countryAliases maps common short forms and informal names to ISO
// 3166 alpha-2 codes, supplementing the canonical name list.
var countryAliases = map[string]string{
	"USA":                  "US",
	"U.S.A.":               "US",
	"United States":        "US",
	"America":              "US",
	"UK":                   "GB",
	"U.K.":                 "GB",
	"Britain":              "GB",
	"Great Britain":        "GB",
	"England":              "GB",
	"Russia":               "RU",
	"UAE":                  "AE",
	"South Korea":          "KR",
	"North Korea":          "KP",
	"Czechia":              "CZ",
	"Czech Republic":       "CZ",
	"Holland":              "NL",
	"The Netherlands":      "NL",
	"Ivory Coast":          "CI",
	"DRC":                  "CD",
	"Congo":                "CG",
	"Macedonia":            "MK",
	"Bosnia":               "BA",
	"Burma":                "MM",
	"Vatican":              "VA",
	"Taiwan":               "TW",
	"Syria":                "SY",
	"Iran":                 "IR",
	"Laos":                 "LA",
	"Moldova":              "MD",
	"Venezuela":            "VE",
	"Bolivia":              "BO",
	"Tanzania":             "TZ",
	"Cape Verde":           "CV",
	"Swaziland":            "SZ",
	"Turkey":               "TR",
}

// countryRecogniser resolves country names and aliases to canonical
// ISO 3166 alpha-2 codes. The automaton is built once at construction
// from the full ISO name list plus the alias table.
type countryRecogniser struct {
	targets []string
	ac      ahocorasick.AhoCorasick
}

func newCountryRecogniser() *countryRecogniser {
	r := &countryRecogniser{}

	var patterns []string
	add := func(pattern, alpha2 string) {
		if pattern == "" || alpha2 == "" {
			return
		}
		patterns = append(patterns, pattern)
		r.targets = append(r.targets, alpha2)
	}

	for _, code := range countries.All() {
		add(code.String(), code.Alpha2())
	}
	for alias, alpha2 := range countryAliases {
		add(alias, alpha2)
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	r.ac = builder.Build(patterns)
	return r
}

func (r *countryRecogniser) name() string { return "country" }

func (r *countryRecogniser) recognise(text *domain.NormalisedText) []domain.EntitySpan {
	matches := r.ac.FindAll(text.Text)
	spans := make([]domain.EntitySpan, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, domain.EntitySpan{
			Type:       domain.EntityCountry,
			Value:      r.targets[m.Pattern()],
			Start:      m.Start(),
			End:        m.End(),
			Recogniser: "country",
			Confidence: 1,
		})
	}
	return spans
}
