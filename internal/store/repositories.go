package store

import "context"

// CredentialRepository persists the OAuth credential of each tenant.
type CredentialRepository interface {
	Get(ctx context.Context, tenant string) (*Credential, error)
	Save(ctx context.Context, cred Credential) error
	Clear(ctx context.Context, tenant string) error
}

// SegmentRepository handles tracked segment storage.
type SegmentRepository interface {
	Create(ctx context.Context, seg Segment) (*Segment, error)
	GetByID(ctx context.Context, id int64) (*Segment, error)
	GetByStravaID(ctx context.Context, stravaID int64) (*Segment, error)
	List(ctx context.Context, filter ListFilter) ([]Segment, error)
	// Patch writes the non-nil fields of p and returns the updated row.
	Patch(ctx context.Context, id int64, p SegmentPatch) (*Segment, error)
	ToggleCompleted(ctx context.Context, id int64) (*Segment, error)
	Delete(ctx context.Context, id int64) error
	ListMissingMap(ctx context.Context) ([]Segment, error)
}
