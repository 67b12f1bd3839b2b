package domain

import "context"

// CharacterRepository defines read access to characters.
type CharacterRepository interface {
	GetByID(ctx context.Context, id string) (*Character, error)
}

// ReferenceImageRepository handles persistence of reference-set entries.
type ReferenceImageRepository interface {
	Create(ctx context.Context, img *ReferenceImage) error
	ListByCharacter(ctx context.Context, characterID string) (ReferenceSet, error)
	DeleteByView(ctx context.Context, characterID string, view ViewKind) error
}

// ReferenceJobRepository defines the queue backing the worker.
type ReferenceJobRepository interface {
	Enqueue(ctx context.Context, job *ReferenceJob) error
	Claim(ctx context.Context) (*ReferenceJob, error)
	UpdateProgress(ctx context.Context, jobID string, progress []byte) error
	Finish(ctx context.Context, jobID string, status JobStatus, errMsg string) error
	GetByID(ctx context.Context, jobID string) (*ReferenceJob, error)
}

// ObjectStore is the storage collaborator the pipeline persists results to.
// Upload returns the public URL of the stored object.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
