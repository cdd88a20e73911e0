package iss

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TLE is a two-line element set with its title line.
type TLE struct {
	Name  string `json:"name"`
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// Elements are the orbital parameters read from a TLE.
type Elements struct {
	Epoch       time.Time
	Inclination float64
	// Revolutions per day.
	MeanMotion float64
	// Orbital period in minutes.
	Period float64
}

// ParseTLE accepts the two or three line format.
func ParseTLE(text string) (TLE, error) {
	lines := []string{}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if trimmed := strings.TrimRight(line, " \t"); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	tle := TLE{}
	switch len(lines) {
	case 2:
		tle.Line1, tle.Line2 = lines[0], lines[1]
	case 3:
		tle.Name, tle.Line1, tle.Line2 = strings.TrimSpace(lines[0]), lines[1], lines[2]
	default:
		return tle, fmt.Errorf("invalid TLE: expected 2 or 3 lines, got %d", len(lines))
	}
	return tle, tle.validate()
}

func (t TLE) validate() error {
	if !strings.HasPrefix(t.Line1, "1 ") || !strings.HasPrefix(t.Line2, "2 ") {
		return fmt.Errorf("invalid TLE line numbers")
	}
	if len(t.Line1) < 32 || len(t.Line2) < 63 {
		return fmt.Errorf("invalid TLE: lines too short")
	}
	return nil
}

func (t TLE) Elements() (Elements, error) {
	elements := Elements{}
	if err := t.validate(); err != nil {
		return elements, err
	}
	year, err := strconv.Atoi(strings.TrimSpace(t.Line1[18:20]))
	if err != nil {
		return elements, fmt.Errorf("invalid epoch year: %w", err)
	}
	// Two digit years: 57-99 are 1900s.
	if year < 57 {
		year += 2000
	} else {
		year += 1900
	}
	day, err := strconv.ParseFloat(strings.TrimSpace(t.Line1[20:32]), 64)
	if err != nil {
		return elements, fmt.Errorf("invalid epoch day: %w", err)
	}
	whole, frac := math.Modf(day)
	elements.Epoch = time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, int(whole)-1).
		Add(time.Duration(frac * float64(24*time.Hour))).
		Round(time.Millisecond)

	elements.Inclination, err = strconv.ParseFloat(strings.TrimSpace(t.Line2[8:16]), 64)
	if err != nil {
		return elements, fmt.Errorf("invalid inclination: %w", err)
	}
	elements.MeanMotion, err = strconv.ParseFloat(strings.TrimSpace(t.Line2[52:63]), 64)
	if err != nil {
		return elements, fmt.Errorf("invalid mean motion: %w", err)
	}
	if elements.MeanMotion <= 0 {
		return elements, fmt.Errorf("invalid mean motion %f", elements.MeanMotion)
	}
	elements.Period = 1440 / elements.MeanMotion
	return elements, nil
}
