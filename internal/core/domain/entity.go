package domain

// EntityType classifies a recognised entity span.
type EntityType string

// Entity types emitted by the matcher.
const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityPhone        EntityType = "phone"
	EntityCountry      EntityType = "country"
	EntityDate         EntityType = "date"
)

// IsValid returns true if the entity type is recognised.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityPerson, EntityOrganization, EntityLocation,
		EntityPhone, EntityCountry, EntityDate:
		return true
	default:
		return false
	}
}

// EntitySpan is a typed, located extraction of a recognised entity
// within normalised text. Read-only once emitted.
type EntitySpan struct {
	// Type classifies the entity.
	Type EntityType

	// Value is the canonical form: E.164 for phones, ISO 3166 alpha-2
	// for countries, RFC 3339 date for dates, dictionary name otherwise.
	Value string

	// Start and End delimit the half-open byte range into the
	// normalised text this span was recognised in.
	Start int
	End   int

	// Recogniser names the mechanism that produced the span
	// ("dictionary", "phone", "country", "date").
	Recogniser string

	// Confidence is the recogniser's confidence in [0, 1].
	Confidence float64

	// Ambiguous marks a span whose interpretation could not be fully
	// resolved (e.g. a date readable under two calendar conventions).
	Ambiguous bool
}

// Contains returns true if s fully covers the byte range of other.
func (s EntitySpan) Contains(other EntitySpan) bool {
	return s.Start <= other.Start && s.End >= other.End
}

// DictionaryEntry is one known entity name with its aliases, loaded from
// the entity dictionary and compiled into the matching automaton.
type DictionaryEntry struct {
	// Name is the canonical entity name.
	Name string `yaml:"name"`

	// Type classifies the entity (person, organization, location).
	Type EntityType `yaml:"type"`

	// Aliases are alternate spellings that resolve to Name.
	Aliases []string `yaml:"aliases,omitempty"`
}
