// Package featureflags gates optional realtime relays per user.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Flag names a rollout switch.
type Flag string

// Realtime relays that can be switched off or rolled out gradually.
const (
	TypingIndicators Flag = "typing_indicators"
	StoryViews       Flag = "story_views"
)

// Set holds flags parsed from "name=value" pairs separated by commas,
// e.g. "typing_indicators=on,story_views=25%". Values are on/off,
// true/false, 1/0 or a percentage rolled out by user id.
type Set struct {
	values map[Flag]string
}

// Parse builds a Set. Malformed pairs are skipped.
func Parse(raw string) *Set {
	values := make(map[Flag]string)
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name, value = clean(name), clean(value)
		if name == "" || value == "" {
			continue
		}
		values[Flag(name)] = value
	}
	return &Set{values: values}
}

// Enabled reports whether flag is on for userID. Unknown flags are off.
func (s *Set) Enabled(flag Flag, userID uint) bool {
	if s == nil {
		return false
	}
	value, ok := s.values[Flag(clean(string(flag)))]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	switch {
	case err != nil || pct <= 0:
		return false
	case pct >= 100:
		return true
	case userID == 0:
		return false
	}
	return bucket(flag, userID) < pct
}

// Snapshot evaluates every configured flag for userID.
func (s *Set) Snapshot(userID uint) map[Flag]bool {
	if s == nil {
		return map[Flag]bool{}
	}
	out := make(map[Flag]bool, len(s.values))
	for name := range s.values {
		out[name] = s.Enabled(name, userID)
	}
	return out
}

// Raw returns the configured values by flag name.
func (s *Set) Raw() map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for name, value := range s.values {
		out[string(name)] = value
	}
	return out
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(flag Flag, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clean(string(flag)) + ":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
