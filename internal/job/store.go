package job

import "context"

// UpdateFunc mutates a record in place. Returning an error aborts the update
// and leaves the stored record unchanged.
type UpdateFunc func(*Record) error

// Store persists job records. Implementations serialize Update calls per job
// so concurrent readers never observe a partially applied mutation.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (Record, error)
}
