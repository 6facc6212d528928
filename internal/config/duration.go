package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so settings files carry human-readable
// values like "10s" instead of nanosecond integers.
type Duration time.Duration

// MarshalYAML renders the duration in time.Duration's string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts either a duration string ("10s") or a bare
// nanosecond integer written by older settings files.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err == nil {
		parsed, parseErr := time.ParseDuration(text)
		if parseErr != nil {
			return fmt.Errorf("parse duration %q: %w", text, parseErr)
		}

		*d = Duration(parsed)

		return nil
	}

	var nanoseconds int64
	if err := value.Decode(&nanoseconds); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}

	*d = Duration(nanoseconds)

	return nil
}
