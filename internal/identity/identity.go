// Package identity maps ephemeral LiveKit room names onto the persistent
// user identity that keys long-term memory.
//
// The token server creates rooms named "usession-<userID>-<suffix>". All
// memory writes are keyed by <userID>, so a room name that does not follow
// the convention is fatal to session setup: proceeding would fragment a
// user's memory across sessions.
package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RoomPrefix is the literal first segment of every agent room name.
const RoomPrefix = "usession"

// ErrBadRoomName reports a room name that does not follow the
// usession-<userID>-<suffix> convention.
type ErrBadRoomName struct {
	RoomName string
}

func (e *ErrBadRoomName) Error() string {
	return fmt.Sprintf("identity: room name %q does not match %s-<userID>-<suffix>", e.RoomName, RoomPrefix)
}

// NewRoomName mints an ephemeral room name for the user. userID must not
// contain dashes; the token server rejects such IDs before minting.
func NewRoomName(userID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%s-%s", RoomPrefix, userID, suffix)
}

// ResolveUserID extracts the persistent user ID from an ephemeral room name.
// The room name must be exactly three non-empty dash-separated segments with
// the literal prefix first. Anything else fails.
func ResolveUserID(roomName string) (string, error) {
	parts := strings.Split(roomName, "-")
	if len(parts) != 3 {
		return "", &ErrBadRoomName{RoomName: roomName}
	}
	if parts[0] != RoomPrefix || parts[1] == "" || parts[2] == "" {
		return "", &ErrBadRoomName{RoomName: roomName}
	}
	return parts[1], nil
}
