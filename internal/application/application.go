package application

import "context"

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// Actor is the caller identity resolved by the transport layer and passed
// explicitly into every use case.
type Actor struct {
	UserID string
	Admin  bool
}

func (a Actor) Authenticated() bool { return a.UserID != "" }

// CanAccess reports whether the actor may read or act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID string) bool {
	return a.Admin || (a.UserID != "" && a.UserID == ownerID)
}
