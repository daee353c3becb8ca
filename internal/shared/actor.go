package shared

import (
	"strings"

	"github.com/agromart/agromart/internal/policy"
)

// Actor is the authenticated principal attached to a request by the
// authentication layer. Its role is trusted verbatim.
type Actor struct {
	ID   string      `json:"id"`
	Role policy.Role `json:"role"`
}

// Valid reports whether both identity and role are present.
func (a Actor) Valid() bool {
	return strings.TrimSpace(a.ID) != "" && strings.TrimSpace(string(a.Role)) != ""
}
