package relay

import (
	"strings"
)

// RoomID derives the broadcast group id for an unordered pair of users:
// the two ids sorted and joined with an underscore. RoomID(a,b) equals
// RoomID(b,a), including the degenerate a==b case.
func RoomID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return strings.Join([]string{userA, userB}, "_")
}
