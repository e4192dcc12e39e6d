package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

// SlotKey is a daily publication time. Typed so slot hot-reload is a
// set-diff over keys instead of string juggling.
type SlotKey struct {
	Hour   uint8
	Minute uint8
}

// String renders the key back to the stored "HH:MM" form.
func (k SlotKey) String() string {
	return fmt.Sprintf("%02d:%02d", k.Hour, k.Minute)
}

// cronSpec renders the key as a standard 5-field cron expression.
func (k SlotKey) cronSpec() string {
	return fmt.Sprintf("%d %d * * *", k.Minute, k.Hour)
}

// ParseSlot parses a time string into a SlotKey. The stored form is
// strictly two-digit "HH:MM"; anything else is rejected.
func ParseSlot(timeStr string) (SlotKey, error) {
	if len(timeStr) != 5 || timeStr[2] != ':' {
		return SlotKey{}, fmt.Errorf("malformed slot time %q", timeStr)
	}
	hour, ok := twoDigits(timeStr[0], timeStr[1])
	if !ok || hour > 23 {
		return SlotKey{}, fmt.Errorf("malformed slot time %q", timeStr)
	}
	minute, ok := twoDigits(timeStr[3], timeStr[4])
	if !ok || minute > 59 {
		return SlotKey{}, fmt.Errorf("malformed slot time %q", timeStr)
	}
	return SlotKey{Hour: uint8(hour), Minute: uint8(minute)}, nil
}

func twoDigits(hi, lo byte) (int, bool) {
	if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
		return 0, false
	}
	return int(hi-'0')*10 + int(lo-'0'), true
}

// normalizeSlots de-duplicates and sorts slot keys.
func normalizeSlots(keys []SlotKey) []SlotKey {
	seen := make(map[SlotKey]bool, len(keys))
	out := make([]SlotKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out
}

// signature is the canonical change-detection form of a normalized slot
// set: sorted "HH:MM" strings joined by commas.
func signature(keys []SlotKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}
