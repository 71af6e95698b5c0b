// Package profile is the port to the child profile directory. Profiles are
// owned elsewhere; the pipeline only reads them to build model context.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when the directory has no such profile.
var ErrNotFound = errors.New("profile not found")

// Profile is the child profile as seen by the ingestion pipeline.
type Profile struct {
	ID           string    `json:"id" toml:"id"`
	Name         string    `json:"name" toml:"name"`
	BirthDate    time.Time `json:"birthDate" toml:"birth_date"`
	GuardianInfo string    `json:"guardianInfo,omitempty" toml:"guardian_info"`
	Concerns     []string  `json:"concerns,omitempty" toml:"concerns"`
	Notes        string    `json:"notes,omitempty" toml:"notes"`
}

// Directory looks up profiles.
type Directory interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)
}

// Age renders the child's age at now, e.g. "7 months" or "2 years 3 months".
// It returns "" when the birth date is unknown.
func (p *Profile) Age(now time.Time) string {
	if p == nil || p.BirthDate.IsZero() || now.Before(p.BirthDate) {
		return ""
	}

	months := (now.Year()-p.BirthDate.Year())*12 + int(now.Month()) - int(p.BirthDate.Month())
	if now.Day() < p.BirthDate.Day() {
		months--
	}

	if months < 1 {
		days := int(now.Sub(p.BirthDate).Hours() / 24)
		return plural(days, "day")
	}
	if months < 24 {
		return plural(months, "month")
	}

	years, rest := months/12, months%12
	if rest == 0 {
		return plural(years, "year")
	}
	return plural(years, "year") + " " + plural(rest, "month")
}

// Describe renders the profile as model context lines.
func (p *Profile) Describe(now time.Time) string {
	if p == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Child: %s", p.Name)
	if age := p.Age(now); age != "" {
		fmt.Fprintf(&b, " (%s old)", age)
	}
	b.WriteString("\n")
	if p.GuardianInfo != "" {
		fmt.Fprintf(&b, "Guardian: %s\n", p.GuardianInfo)
	}
	if len(p.Concerns) > 0 {
		fmt.Fprintf(&b, "Concerns: %s\n", strings.Join(p.Concerns, ", "))
	}
	if p.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", p.Notes)
	}
	return b.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
