package tracking

import "context"

// UserDirectory resolves user ids to display names. It is an opaque host
// service; the in-repo implementation is whatever the deployment wires in.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (name, surname string, err error)
}

// NoopDirectory satisfies UserDirectory when no host directory is wired,
// returning empty names without error.
type NoopDirectory struct{}

// Lookup returns empty names for every id.
func (NoopDirectory) Lookup(_ context.Context, _ string) (string, string, error) {
	return "", "", nil
}
