package auth

import (
	"strings"

	"github.com/google/uuid"
)

// Identity is the resolved profile for a socket connection. UserID is the
// stable subject from the token; guests get an empty UserID and a generated
// display name.
type Identity struct {
	UserID      string
	DisplayName string
	AvatarRef   string
	Guest       bool
}

// ResolveIdentity maps validated claims and an optional username hint to
// the identity the game attaches to a connection. A nil claims value means
// the connection is a guest.
func ResolveIdentity(claims *CustomClaims, usernameHint string) Identity {
	if claims == nil {
		name := usernameHint
		if name == "" {
			name = "Guest-" + uuid.NewString()[:8]
		}
		return Identity{DisplayName: name, Guest: true}
	}

	displayName := usernameHint
	if displayName == "" {
		displayName = claims.Subject
		if claims.Name != "" {
			displayName = claims.Name
		} else if claims.Email != "" {
			// Use email prefix as display name
			if parts := strings.Split(claims.Email, "@"); len(parts) > 0 {
				displayName = parts[0]
			}
		}
	}

	return Identity{
		UserID:      claims.Subject,
		DisplayName: displayName,
		AvatarRef:   claims.Avatar,
	}
}
