package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"studytimer/internal/schedule"
)

var dayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// parseDay accepts 0-6 or a (possibly abbreviated) English day name.
func parseDay(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("day %d out of range 0-6", n)
		}
		return n, nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for i, name := range dayNames {
			if strings.HasPrefix(name, s) {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

func dayName(d int) string {
	if d < 0 || d >= len(dayNames) {
		return strconv.Itoa(d)
	}
	return strings.ToUpper(dayNames[d][:1]) + dayNames[d][1:3]
}

// scheduleEntry is one session in a schedule file.
type scheduleEntry struct {
	Day     string `yaml:"day"`
	Subject string `yaml:"subject"`
	Study   int    `yaml:"study"` // minutes
	Break   int    `yaml:"break"` // minutes
}

type scheduleFile struct {
	Sessions []scheduleEntry `yaml:"sessions"`
}

func readScheduleFile(path string) ([]scheduleEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f scheduleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Sessions, nil
}

func encodeSchedule(sessions []schedule.Session) ([]byte, error) {
	f := scheduleFile{Sessions: make([]scheduleEntry, 0, len(sessions))}
	for _, s := range sessions {
		f.Sessions = append(f.Sessions, scheduleEntry{
			Day:     dayNames[s.Day],
			Subject: s.Subject,
			Study:   s.StudyDuration,
			Break:   s.BreakDuration,
		})
	}
	return yaml.Marshal(f)
}
