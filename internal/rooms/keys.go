// Package rooms derives canonical room keys from participant identifiers.
package rooms

import "errors"

// ErrInvalidIdentifier is returned when a room key is requested for an
// empty identifier. Callers must reject the originating request instead
// of joining a malformed room.
var ErrInvalidIdentifier = errors.New("rooms: invalid identifier")

// keySeparator joins the two participant ids of a chat room. Identifiers
// are emails or uuids, neither of which starts or ends with '-', so the
// derived key round-trips unambiguously enough for map lookup.
const keySeparator = "-"

// ChatKey returns the canonical key for the chat room between a and b.
// The key is order-independent: ChatKey(a, b) == ChatKey(b, a).
func ChatKey(a, b string) (string, error) {
	if a == "" || b == "" {
		return "", ErrInvalidIdentifier
	}
	if a > b {
		a, b = b, a
	}
	return a + keySeparator + b, nil
}

// MeetingKey returns the room key for a meeting. Meeting ids are already
// globally unique (minted by the scheduling API), so they are used as-is.
func MeetingKey(meetingID string) (string, error) {
	if meetingID == "" {
		return "", ErrInvalidIdentifier
	}
	return meetingID, nil
}
