package mars

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "20060102"

// DateType accepts absolute dates (YYYY-MM-DD or YYYYMMDD) and relative
// forms (-N days, "0", or a handful of named forms), resolving the
// relative forms in Pass2 against a reference date read from a sibling
// key — RefKey — or, absent one, the day Pass2 runs on.
type DateType struct {
	baseType
	RefKey string
	Now    func() time.Time // overridable for tests; defaults to time.Now
}

func NewDateType(name, category string) *DateType {
	return &DateType{baseType: baseType{name: name, category: category, flatten: true}, Now: time.Now}
}

func (t *DateType) Expand(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		norm, err := normalizeDateToken(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v (key %q)", ErrInvalidValue, err, t.name)
		}
		out = append(out, norm)
	}
	return dedup(out, t.duplicates), nil
}

// normalizeDateToken accepts an absolute date and canonicalizes it to
// YYYYMMDD, or passes a relative token through unchanged for Pass2 to
// resolve.
func normalizeDateToken(v string) (string, error) {
	v = strings.TrimSpace(v)
	if isRelativeDateToken(v) {
		return strings.ToLower(v), nil
	}
	if len(v) == 10 && v[4] == '-' && v[7] == '-' {
		compact := v[0:4] + v[5:7] + v[8:10]
		if _, err := time.Parse(dateLayout, compact); err != nil {
			return "", fmt.Errorf("invalid date %q: %w", v, err)
		}
		return compact, nil
	}
	if len(v) == 8 {
		if _, err := time.Parse(dateLayout, v); err != nil {
			return "", fmt.Errorf("invalid date %q: %w", v, err)
		}
		return v, nil
	}
	return "", fmt.Errorf("unrecognized date token %q", v)
}

func isRelativeDateToken(v string) bool {
	lower := strings.ToLower(v)
	switch lower {
	case "0", "today", "yesterday", "tomorrow":
		return true
	}
	if len(lower) > 1 && lower[0] == '-' {
		if _, err := strconv.Atoi(lower[1:]); err == nil {
			return true
		}
	}
	return false
}

// Pass2 resolves every relative value of this parameter against a
// reference date: RefKey's first value if set and present on req,
// otherwise the date Now() returns.
func (t *DateType) Pass2(req *Request, key string) error {
	p := req.parameter(key)
	if p == nil {
		return nil
	}
	ref := t.now()
	if t.RefKey != "" {
		if sibling := req.parameter(t.RefKey); sibling != nil && len(sibling.values) > 0 {
			parsed, err := time.Parse(dateLayout, sibling.values[0])
			if err == nil {
				ref = parsed
			}
		}
	}
	resolved := make([]string, len(p.values))
	for i, v := range p.values {
		r, err := resolveRelativeDate(v, ref)
		if err != nil {
			return fmt.Errorf("%w: %v (key %q)", ErrInvalidValue, err, key)
		}
		resolved[i] = r
	}
	p.values = resolved
	return nil
}

func (t *DateType) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func resolveRelativeDate(v string, ref time.Time) (string, error) {
	lower := strings.ToLower(v)
	switch lower {
	case "0", "today":
		return ref.Format(dateLayout), nil
	case "yesterday":
		return ref.AddDate(0, 0, -1).Format(dateLayout), nil
	case "tomorrow":
		return ref.AddDate(0, 0, 1).Format(dateLayout), nil
	}
	if len(lower) > 1 && lower[0] == '-' {
		n, err := strconv.Atoi(lower[1:])
		if err != nil {
			return "", fmt.Errorf("unrecognized relative date %q", v)
		}
		return ref.AddDate(0, 0, -n).Format(dateLayout), nil
	}
	// Already absolute (normalizeDateToken ran in Expand).
	return v, nil
}

// TimeType normalizes HH, HHMM, and HHMMSS tokens to a canonical 6-digit
// HHMMSS form.
type TimeType struct{ baseType }

func NewTimeType(name, category string) *TimeType {
	return &TimeType{baseType{name: name, category: category, flatten: true}}
}

func (t *TimeType) Expand(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		norm, err := normalizeTimeToken(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v (key %q)", ErrInvalidValue, err, t.name)
		}
		out = append(out, norm)
	}
	return dedup(out, t.duplicates), nil
}

func normalizeTimeToken(v string) (string, error) {
	v = strings.TrimSpace(v)
	switch len(v) {
	case 1, 2:
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 23 {
			return "", fmt.Errorf("invalid time %q", v)
		}
		return fmt.Sprintf("%02d0000", n), nil
	case 3, 4:
		padded := v
		for len(padded) < 4 {
			padded = "0" + padded
		}
		h, err1 := strconv.Atoi(padded[0:2])
		m, err2 := strconv.Atoi(padded[2:4])
		if err1 != nil || err2 != nil || h > 23 || m > 59 {
			return "", fmt.Errorf("invalid time %q", v)
		}
		return fmt.Sprintf("%02d%02d00", h, m), nil
	case 6:
		h, err1 := strconv.Atoi(v[0:2])
		m, err2 := strconv.Atoi(v[2:4])
		s, err3 := strconv.Atoi(v[4:6])
		if err1 != nil || err2 != nil || err3 != nil || h > 23 || m > 59 || s > 59 {
			return "", fmt.Errorf("invalid time %q", v)
		}
		return fmt.Sprintf("%02d%02d%02d", h, m, s), nil
	default:
		return "", fmt.Errorf("unrecognized time token %q", v)
	}
}
