package tgui

import "strings"

// Data formats inline callback data as "namespace:action:payload". Payload is
// kept as-is; an empty payload drops the trailing separator.
func Data(namespace, action, payload string) string {
	namespace = strings.TrimSpace(namespace)
	action = strings.TrimSpace(action)
	if payload == "" {
		return namespace + ":" + action
	}
	return namespace + ":" + action + ":" + payload
}

// SplitData is the inverse of Data. ok is false when data has no separator.
func SplitData(data string) (namespace, action, payload string, ok bool) {
	namespace, rest, ok := strings.Cut(data, ":")
	if !ok {
		return "", "", "", false
	}
	action, payload, _ = strings.Cut(rest, ":")
	return namespace, action, payload, true
}
