package providers

import (
	"net/http"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
)

// SessionProvider resolves the identity behind a request.
// Login and session issuance belong to the auth collaborator; this side only reads.
type SessionProvider interface {
	// Resolve returns the session user, or nil when the request carries no valid session
	Resolve(r *http.Request) (*entities.SessionUser, error)

	// Issue writes a session for user onto the response
	Issue(w http.ResponseWriter, user *entities.SessionUser) error
}
