package logs

import (
	"encoding/json"
	"strings"
)

// EventFilter matches JSON event lines whose event_type is one of eventTypes
// and whose violation_kind is one of kinds. An empty list matches anything.
// Lines that are not JSON objects never match when any criterion is set.
func EventFilter(eventTypes, kinds []string) func(string) bool {
	types := toSet(eventTypes)
	kindSet := toSet(kinds)
	if len(types) == 0 && len(kindSet) == 0 {
		return func(string) bool { return true }
	}
	return func(line string) bool {
		var record struct {
			EventType     string `json:"event_type"`
			ViolationKind string `json:"violation_kind"`
		}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return false
		}
		if len(types) > 0 {
			if _, ok := types[record.EventType]; !ok {
				return false
			}
		}
		if len(kindSet) > 0 {
			if _, ok := kindSet[record.ViolationKind]; !ok {
				return false
			}
		}
		return true
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
