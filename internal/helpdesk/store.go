package helpdesk

import "context"

// Store is the persistence interface for helpdesk records. The worker only
// reads; the intake server writes. Get returns ok=false when no record
// exists for the key.
type Store interface {
	Get(ctx context.Context, category, id string) (*Request, bool, error)
	Put(ctx context.Context, r *Request) error
}

// Lister lists every stored record. The analytics tools aggregate over the
// full set in memory, which matches the data sizes this system handles.
type Lister interface {
	List(ctx context.Context) ([]*Request, error)
}
