package validation

import (
	"fmt"
	"strings"
	"time"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Field joins a path prefix and a field name, e.g. Field("clients[0]", "email").
func Field(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Index formats an indexed path segment, e.g. Index("vehicles", 2) == "vehicles[2]".
func Index(prefix string, i int) string {
	return fmt.Sprintf("%s[%d]", prefix, i)
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func PositiveFloat(field string, val float64, v Violations) {
	if val <= 0 {
		v[field] = "must_be_positive"
	}
}

func NonNegativeFloat(field string, val float64, v Violations) {
	if val < 0 {
		v[field] = "must_not_be_negative"
	}
}

func PositiveInt(field string, val int64, v Violations) {
	if val <= 0 {
		v[field] = "must_be_positive"
	}
}

func RangeInt(field string, val, minVal, maxVal int, v Violations) {
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

// OneOf flags value when it is not one of allowed.
func OneOf(field, value string, allowed []string, v Violations) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v[field] = "invalid_choice"
}

// Date accepts a calendar date (2006-01-02) or a full RFC 3339 timestamp.
// Empty values are reported as required.
func Date(field, value string, v Violations) {
	value = strings.TrimSpace(value)
	if value == "" {
		v[field] = "required"
		return
	}
	if _, err := time.Parse(time.DateOnly, value); err == nil {
		return
	}
	if _, err := time.Parse(time.RFC3339, value); err == nil {
		return
	}
	v[field] = "invalid_date"
}
