package user

import "context"

// Repository is the durable store of user records.
// Save stages a write; staged writes become durable on Flush.
type Repository interface {
	// Get returns the record for id, or nil if the user was never seen.
	Get(ctx context.Context, id int64) (*Record, error)
	Save(ctx context.Context, r *Record) error
	List(ctx context.Context) ([]Record, error)
	Flush(ctx context.Context) error
}
