package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// RebuildAfter is the staleness threshold. The YAML shape is a mapping of
// time units to amounts, e.g. {days: 1, hours: 12}.
type RebuildAfter struct {
	time.Duration
	set bool
}

// DefaultRebuildAfter is one day, matching the default rebuild cadence.
func DefaultRebuildAfter() RebuildAfter {
	return RebuildAfter{Duration: 24 * time.Hour, set: true}
}

var rebuildUnits = map[string]time.Duration{
	"weeks":        7 * 24 * time.Hour,
	"days":         24 * time.Hour,
	"hours":        time.Hour,
	"minutes":      time.Minute,
	"seconds":      time.Second,
	"milliseconds": time.Millisecond,
	"microseconds": time.Microsecond,
}

func (r *RebuildAfter) UnmarshalYAML(value *yaml.Node) error {
	pairs, err := mappingPairs(value, "rebuild_after")
	if err != nil {
		return err
	}
	var total time.Duration
	for _, p := range pairs {
		unit, ok := rebuildUnits[p.key]
		if !ok {
			return fmt.Errorf("invalid key %q passed to rebuild_after", p.key)
		}
		amount, err := strconv.ParseFloat(p.val.Value, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q for rebuild_after %s", p.val.Value, p.key)
		}
		total += time.Duration(amount * float64(unit))
	}
	r.Duration = total
	r.set = true
	return nil
}

// Timeout bounds a single external-process invocation. Zero means no limit.
// The YAML shape is a Go duration string, e.g. "30m".
type Timeout struct {
	time.Duration
}

func (t *Timeout) UnmarshalYAML(value *yaml.Node) error {
	d, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid command_timeout %q: %w", value.Value, err)
	}
	t.Duration = d
	return nil
}

// SigningKey identifies the GPG key used for checksum signing. An integer key
// id in the document is rendered as uppercase hex.
type SigningKey string

func (k *SigningKey) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		n, err := strconv.ParseInt(value.Value, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid key %q: %w", value.Value, err)
		}
		*k = SigningKey(fmt.Sprintf("%X", n))
		return nil
	}
	*k = SigningKey(value.Value)
	return nil
}

// Size is an image size given as a human amount with an optional binary
// suffix ("200k", "1M", "0.5G"). It is passed to the builder in bytes.
type Size struct {
	bytes int64
}

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("bad size format")
	}
	raw := value.Value
	// RAMInBytes wants a digit-led amount; anything else is a config error.
	bytes, err := units.RAMInBytes(raw)
	if err != nil {
		return fmt.Errorf("bad size format %q", raw)
	}
	s.bytes = bytes
	return nil
}

// Bytes returns the size in bytes.
func (s *Size) Bytes() int64 { return s.bytes }

func (s *Size) String() string { return strconv.FormatInt(s.bytes, 10) }

// ExpandPlaceholders substitutes the {branch} and {arch} placeholders of a
// templated address.
func ExpandPlaceholders(tmpl, branch, arch string) string {
	return strings.NewReplacer("{branch}", branch, "{arch}", arch).Replace(tmpl)
}
