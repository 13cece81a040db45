package rule

import "strings"

// MatchesEvent reports whether this rule's trigger configuration matches the
// given event name. Match semantics vary by trigger type:
//
//   - entity_lifecycle: event names look like "<model>.<verb>"
//     (e.g. "user.updated"); the config's model must equal the model part and
//     the verb must be listed in the config's events (empty = all verbs).
//   - raw_data_change: same shape with config keys table/operations
//     (e.g. "orders.insert").
//   - scheduled: the config's schedule identifier must equal the event name.
//   - custom_signal: the config's signal identifier must equal the event name.
func (r *Rule) MatchesEvent(eventName string) bool {
	switch r.TriggerType {
	case TriggerEntityLifecycle:
		subject, verb := splitEvent(eventName)
		return configString(r.TriggerConfig, "model") == subject &&
			verbAllowed(r.TriggerConfig, "events", verb)
	case TriggerRawDataChange:
		subject, verb := splitEvent(eventName)
		return configString(r.TriggerConfig, "table") == subject &&
			verbAllowed(r.TriggerConfig, "operations", verb)
	case TriggerScheduled:
		return configString(r.TriggerConfig, "schedule") == eventName
	case TriggerCustomSignal:
		return configString(r.TriggerConfig, "signal") == eventName
	}
	return false
}

// splitEvent splits "<subject>.<verb>" at the last dot, so model names may
// themselves contain dots.
func splitEvent(name string) (subject, verb string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

func configString(cfg map[string]any, key string) string {
	if cfg == nil {
		return ""
	}
	s, _ := cfg[key].(string)
	return s
}

// verbAllowed checks the verb against a config list that may be absent
// (allow all), a single string, or a list of strings.
func verbAllowed(cfg map[string]any, key, verb string) bool {
	if cfg == nil {
		return true
	}
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return true
	}
	switch v := raw.(type) {
	case string:
		return v == verb || v == "*"
	case []string:
		if len(v) == 0 {
			return true
		}
		for _, item := range v {
			if item == verb || item == "*" {
				return true
			}
		}
	case []any:
		if len(v) == 0 {
			return true
		}
		for _, item := range v {
			if s, ok := item.(string); ok && (s == verb || s == "*") {
				return true
			}
		}
	}
	return false
}
