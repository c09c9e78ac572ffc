// Package application holds the structured form of a temporary entry request.
package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnparsableInstant = errors.New("unparsable date/time")

type Companion struct {
	Identity    string `json:"mcid"`
	Nationality string `json:"nation,omitempty"`
}

// UnmarshalJSON accepts either a bare identity string or an object.
func (c *Companion) UnmarshalJSON(b []byte) error {
	var handle string
	if err := json.Unmarshal(b, &handle); err == nil {
		*c = Companion{Identity: handle}
		return nil
	}
	type companionObject Companion
	var obj companionObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("companion: %w", err)
	}
	*c = Companion(obj)
	return nil
}

type Application struct {
	Identity    string      `json:"mcid"`
	Nationality string      `json:"nation"`
	Purpose     string      `json:"purpose"`
	Start       string      `json:"start_datetime"`
	End         string      `json:"end_datetime"`
	Companions  []Companion `json:"companions"`
	Sponsors    []string    `json:"joiners"`

	// SponsorIDs are the member ids the sponsor names resolved to.
	SponsorIDs []string `json:"-"`
}

var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseInstant reads the date/time formats the extraction model is asked to emit.
// Values without an offset are read in loc.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparsableInstant
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableInstant, s)
}

// Stay is the exact length between the parsed start and end instants.
func (a *Application) Stay(loc *time.Location) (time.Duration, error) {
	start, err := ParseInstant(a.Start, loc)
	if err != nil {
		return 0, err
	}
	end, err := ParseInstant(a.End, loc)
	if err != nil {
		return 0, err
	}
	return end.Sub(start), nil
}

// StayHours is the stay length in whole hours, for display.
func (a *Application) StayHours(loc *time.Location) (int64, error) {
	d, err := a.Stay(loc)
	if err != nil {
		return 0, err
	}
	return int64(d / time.Hour), nil
}

// MissingRequired lists required fields that are empty.
func (a *Application) MissingRequired() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"mcid", a.Identity},
		{"nation", a.Nationality},
		{"purpose", a.Purpose},
		{"start_datetime", a.Start},
		{"end_datetime", a.End},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func (a *Application) CompanionIdentities() []string {
	out := make([]string, 0, len(a.Companions))
	for _, c := range a.Companions {
		if c.Identity != "" {
			out = append(out, c.Identity)
		}
	}
	return out
}
