package match

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// phoneCandidate matches digit runs that could be phone numbers:
// an optional +, then digits with common separators, at least 7 digits
// worth of length. Candidates are validated against country calling
// code rules before a span is emitted.
var phoneCandidate = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{5,18}\d`)

// langRegion maps an ISO 639-3 language code to the default dialling
// region used for numbers written without a country code.
var langRegion = map[string]string{
	"eng": "US",
	"deu": "DE",
	"fra": "FR",
	"spa": "ES",
	"por": "PT",
	"ita": "IT",
	"nld": "NL",
	"rus": "RU",
	"ukr": "UA",
	"pol": "PL",
	"ron": "RO",
	"tur": "TR",
	"arb": "SA",
	"cmn": "CN",
	"jpn": "JP",
}

// phoneRecogniser validates candidate digit runs with libphonenumber
// rules and emits E.164-formatted phone spans.
type phoneRecogniser struct{}

func (phoneRecogniser) name() string { return "phone" }

func (phoneRecogniser) recognise(text *domain.NormalisedText) []domain.EntitySpan {
	region := regionHint(text.Languages)

	var spans []domain.EntitySpan
	for _, loc := range phoneCandidate.FindAllStringIndex(text.Text, -1) {
		candidate := text.Text[loc[0]:loc[1]]

		international := strings.HasPrefix(candidate, "+")
		parseRegion := region
		if international {
			parseRegion = ""
		}

		num, err := phonenumbers.Parse(candidate, parseRegion)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			continue
		}

		confidence := 0.8
		if international {
			confidence = 1
		}
		spans = append(spans, domain.EntitySpan{
			Type:       domain.EntityPhone,
			Value:      phonenumbers.Format(num, phonenumbers.E164),
			Start:      loc[0],
			End:        loc[1],
			Recogniser: "phone",
			Confidence: confidence,
		})
	}
	return spans
}

// regionHint picks the dialling region implied by the document's top
// detected language. Empty when no language maps to a region.
func regionHint(langs []domain.LanguageGuess) string {
	for _, lang := range langs {
		if region, ok := langRegion[lang.Code]; ok {
			return region
		}
	}
	return ""
}
