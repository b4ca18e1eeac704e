package types

import (
	"errors"
	"strings"
	"time"
)

// Proficiency is one of four ordered skill-mastery levels.
type Proficiency string

const (
	ProficiencyBeginner     Proficiency = "Beginner"
	ProficiencyIntermediate Proficiency = "Intermediate"
	ProficiencyAdvanced     Proficiency = "Advanced"
	ProficiencyExpert       Proficiency = "Expert"
)

// Proficiencies lists the valid proficiency levels in ascending order.
var Proficiencies = []Proficiency{
	ProficiencyBeginner,
	ProficiencyIntermediate,
	ProficiencyAdvanced,
	ProficiencyExpert,
}

// Valid reports whether p is one of the four known levels.
func (p Proficiency) Valid() bool {
	for _, known := range Proficiencies {
		if p == known {
			return true
		}
	}
	return false
}

// Gender is the self-described gender on a profile.
type Gender string

const (
	GenderMale           Gender = "Male"
	GenderFemale         Gender = "Female"
	GenderNonBinary      Gender = "Non-binary"
	GenderPreferNotToSay Gender = "Prefer not to say"
)

// Genders lists the accepted Gender values.
var Genders = []Gender{GenderMale, GenderFemale, GenderNonBinary, GenderPreferNotToSay}

// Valid reports whether g is an accepted value.
func (g Gender) Valid() bool {
	for _, known := range Genders {
		if g == known {
			return true
		}
	}
	return false
}

// SkillOwned is a skill the user already has, grouped under a domain.
type SkillOwned struct {
	Skill       string      `json:"skill"`
	Proficiency Proficiency `json:"proficiency"`
	Domain      string      `json:"domain"`
}

// SkillToLearn is a skill the user wants to acquire, grouped under a domain.
type SkillToLearn struct {
	Skill  string `json:"skill"`
	Domain string `json:"domain"`
}

// Domains is the controlled vocabulary of skill domains.
var Domains = []string{
	"Artificial Intelligence",
	"Machine Learning",
	"Data Science",
	"Cybersecurity",
	"Web Development",
	"Mobile Development",
	"Blockchain",
	"Game Development",
	"UI/UX Design",
	"Cloud Computing",
	"DevOps",
	"Software Engineering",
	"Database Management",
	"Network Administration",
	"Digital Marketing",
	"Project Management",
	"Quality Assurance",
	"Data Analysis",
	"Business Intelligence",
}

var domainSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Domains))
	for _, d := range Domains {
		set[d] = struct{}{}
	}
	return set
}()

// IsKnownDomain reports whether name is part of the domain vocabulary.
// The comparison is exact.
func IsKnownDomain(name string) bool {
	_, ok := domainSet[name]
	return ok
}

// DateLayout is the wire format of Date.
const DateLayout = "2006-01-02"

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, errors.New("empty date")
	}
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return NewDate(t), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return Date{}, err
	}
	return NewDate(t), nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDate(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
