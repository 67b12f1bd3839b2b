package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"charforge/internal/domain"
)

// ReferenceImageRepositoryPG implements domain.ReferenceImageRepository using PostgreSQL.
type ReferenceImageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewReferenceImageRepository constructs a new reference image repository instance.
func NewReferenceImageRepository(pool *pgxpool.Pool) *ReferenceImageRepositoryPG {
	return &ReferenceImageRepositoryPG{pool: pool}
}

// Create persists one reference-set entry.
func (r *ReferenceImageRepositoryPG) Create(ctx context.Context, img *domain.ReferenceImage) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO reference_images (id, character_id, view, storage_key, url, width, height)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`, img.ID, img.CharacterID, string(img.View), img.StorageKey, img.URL, img.Width, img.Height)
	return err
}

// ListByCharacter returns the character's reference set ordered by creation time.
func (r *ReferenceImageRepositoryPG) ListByCharacter(ctx context.Context, characterID string) (domain.ReferenceSet, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, character_id, view, storage_key, url, width, height, created_at
FROM reference_images
WHERE character_id = $1
ORDER BY created_at ASC;
`, characterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var set domain.ReferenceSet
	for rows.Next() {
		var img domain.ReferenceImage
		var view string
		if err := rows.Scan(&img.ID, &img.CharacterID, &view, &img.StorageKey, &img.URL, &img.Width, &img.Height, &img.CreatedAt); err != nil {
			return nil, err
		}
		img.View = domain.ViewKind(view)
		set = append(set, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

// DeleteByView removes the character's entries for one view.
func (r *ReferenceImageRepositoryPG) DeleteByView(ctx context.Context, characterID string, view domain.ViewKind) error {
	_, err := r.pool.Exec(ctx, `
DELETE FROM reference_images
WHERE character_id = $1 AND view = $2;
`, characterID, string(view))
	return err
}

var _ domain.ReferenceImageRepository = (*ReferenceImageRepositoryPG)(nil)
