// Package user defines the purchase-time user context consumed by the
// commerce engine. The engine never loads users itself; the calling layer
// resolves the context (session, API key, ...) and passes it in.
package user

import "context"

// User carries the account attributes the purchase checks depend on.
type User struct {
	ID        int64
	Name      string
	Class     int
	NodeGroup int

	// IsShadowBanned makes every purchase attempt fail with the same
	// reason as an out-of-stock product. Callers must not be able to
	// tell the two apart.
	IsShadowBanned bool
}

// Repository resolves user contexts for the HTTP layer.
type Repository interface {
	// FindByKeyHash looks up a user by the HMAC-SHA256 hash of their API key.
	FindByKeyHash(ctx context.Context, hash string) (*User, error)
}
