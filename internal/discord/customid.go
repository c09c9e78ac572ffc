package discord

import "strings"

const customIDSeparator = ":"

// CustomID joins a component action with the id of the session or round it belongs to.
func CustomID(action, ref string) string {
	return action + customIDSeparator + ref
}

// ParseCustomID splits a CustomID. ok is false when there is no reference part.
func ParseCustomID(customID string) (action, ref string, ok bool) {
	action, ref, ok = strings.Cut(customID, customIDSeparator)
	if !ok || action == "" || ref == "" {
		return "", "", false
	}
	return action, ref, true
}
