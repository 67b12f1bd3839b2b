package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"charforge/internal/domain"
)

// CharacterRepositoryPG implements domain.CharacterRepository using PostgreSQL.
type CharacterRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCharacterRepository constructs a new character repository instance.
func NewCharacterRepository(pool *pgxpool.Pool) *CharacterRepositoryPG {
	return &CharacterRepositoryPG{pool: pool}
}

// GetByID loads one character.
func (r *CharacterRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Character, error) {
	var c domain.Character
	err := r.pool.QueryRow(ctx, `
SELECT id, name, gender, adapter_tag, hair_tags, eye_tags, body_tags, attire_tags,
       extra_tags, style, theme, description, created_at, updated_at
FROM characters
WHERE id = $1;
`, id).Scan(&c.ID, &c.Name, &c.Gender, &c.AdapterTag, &c.HairTags, &c.EyeTags, &c.BodyTags,
		&c.AttireTags, &c.ExtraTags, &c.Style, &c.Theme, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

var _ domain.CharacterRepository = (*CharacterRepositoryPG)(nil)
