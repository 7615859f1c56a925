package rollup

import "context"

// Repository persists buckets.
type Repository interface {
	// MarkApplied records an application key; false means it was already recorded.
	MarkApplied(ctx context.Context, applicationKey string) (bool, error)

	// Increment adds d to its bucket, creating it at zero first. Products not
	// yet counted in the bucket raise products_count.
	Increment(ctx context.Context, d Delta) error

	Get(ctx context.Context, k Key) (Bucket, error)
	List(ctx context.Context, q Query) ([]Bucket, error)
}
