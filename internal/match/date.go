package match

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/docforge/internal/core/domain"
)

// dateOrder is the day/month reading convention implied by a locale.
type dateOrder int

const (
	orderUnknown dateOrder = iota
	orderDayFirst
	orderMonthFirst
)

// monthFirstLangs lists languages whose dominant writing convention
// puts the month before the day. Everything else detected defaults to
// day-first.
var monthFirstLangs = map[string]bool{
	"eng": true,
}

var (
	// numericDate matches d/m/y and m/d/y style dates with /, . or -
	// separators. Which field is the day is resolved by the tie-break
	// rules below.
	numericDate = regexp.MustCompile(`\b(\d{1,2})([/.\-])(\d{1,2})([/.\-])(\d{4})\b`)

	// isoDate matches unambiguous year-first dates.
	isoDate = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

	// textualDate matches "3 April 2021" and "April 3, 2021".
	textualDate = regexp.MustCompile(`\b(?:(\d{1,2})\s+([A-Za-z]+)|([A-Za-z]+)\s+(\d{1,2}),?)\s+(\d{4})\b`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "jun": time.June, "jul": time.July,
	"aug": time.August, "sep": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

// dateRecogniser parses dates under locale-ambiguity rules. Tie-break
// for a/b/year: prefer the order implied by the document's detected
// language; else prefer the interpretation that yields a valid
// calendar date; else emit the day-first reading flagged ambiguous.
type dateRecogniser struct{}

func (dateRecogniser) name() string { return "date" }

func (dateRecogniser) recognise(text *domain.NormalisedText) []domain.EntitySpan {
	order := localeOrder(text.Languages)

	var spans []domain.EntitySpan
	spans = append(spans, isoDates(text.Text)...)
	spans = append(spans, numericDates(text.Text, order)...)
	spans = append(spans, textualDates(text.Text)...)
	return spans
}

// localeOrder returns the day/month convention implied by the top
// detected language.
func localeOrder(langs []domain.LanguageGuess) dateOrder {
	if len(langs) == 0 {
		return orderUnknown
	}
	if monthFirstLangs[langs[0].Code] {
		return orderMonthFirst
	}
	return orderDayFirst
}

func isoDates(text string) []domain.EntitySpan {
	var spans []domain.EntitySpan
	for _, m := range isoDate.FindAllStringSubmatchIndex(text, -1) {
		year := atoi(text[m[2]:m[3]])
		month := atoi(text[m[4]:m[5]])
		day := atoi(text[m[6]:m[7]])
		if !validDate(year, month, day) {
			continue
		}
		spans = append(spans, dateSpan(year, month, day, m[0], m[1], false))
	}
	return spans
}

func numericDates(text string, order dateOrder) []domain.EntitySpan {
	var spans []domain.EntitySpan
	for _, m := range numericDate.FindAllStringSubmatchIndex(text, -1) {
		// Mixed separators ("03/04-2021") are not a date.
		if text[m[4]:m[5]] != text[m[8]:m[9]] {
			continue
		}
		a := atoi(text[m[2]:m[3]])
		b := atoi(text[m[6]:m[7]])
		year := atoi(text[m[10]:m[11]])

		span, ok := resolveNumeric(a, b, year, order, m[0], m[1])
		if !ok {
			// Neither reading is a valid calendar date; the span is
			// omitted for this recogniser only.
			continue
		}
		spans = append(spans, span)
	}
	return spans
}

// resolveNumeric applies the tie-break contract to an a/b/year date.
func resolveNumeric(a, b, year int, order dateOrder, start, end int) (domain.EntitySpan, bool) {
	dayFirstValid := validDate(year, b, a)
	monthFirstValid := validDate(year, a, b)

	switch {
	case !dayFirstValid && !monthFirstValid:
		return domain.EntitySpan{}, false
	case dayFirstValid && !monthFirstValid:
		return dateSpan(year, b, a, start, end, false), true
	case monthFirstValid && !dayFirstValid:
		return dateSpan(year, a, b, start, end, false), true
	}

	// Both readings are valid calendar dates: fall back to the locale.
	switch order {
	case orderDayFirst:
		return dateSpan(year, b, a, start, end, false), true
	case orderMonthFirst:
		return dateSpan(year, a, b, start, end, false), true
	default:
		// No locale signal either; report the day-first reading but
		// flag the span ambiguous.
		return dateSpan(year, b, a, start, end, true), true
	}
}

func textualDates(text string) []domain.EntitySpan {
	var spans []domain.EntitySpan
	for _, m := range textualDate.FindAllStringSubmatchIndex(text, -1) {
		var day int
		var monthTok string
		if m[2] >= 0 {
			// "3 April 2021"
			day = atoi(text[m[2]:m[3]])
			monthTok = text[m[4]:m[5]]
		} else {
			// "April 3, 2021"
			monthTok = text[m[6]:m[7]]
			day = atoi(text[m[8]:m[9]])
		}
		year := atoi(text[m[10]:m[11]])

		month, ok := monthNames[strings.ToLower(monthTok)]
		if !ok {
			continue
		}
		if !validDate(year, int(month), day) {
			continue
		}
		spans = append(spans, dateSpan(year, int(month), day, m[0], m[1], false))
	}
	return spans
}

// validDate reports whether year/month/day is a real calendar date.
func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

func dateSpan(year, month, day, start, end int, ambiguous bool) domain.EntitySpan {
	confidence := 1.0
	if ambiguous {
		confidence = 0.5
	}
	return domain.EntitySpan{
		Type:       domain.EntityDate,
		Value:      fmt.Sprintf("%04d-%02d-%02d", year, month, day),
		Start:      start,
		End:        end,
		Recogniser: "date",
		Confidence: confidence,
		Ambiguous:  ambiguous,
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
