package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
	"github.com/closetmatrix/closet-matrix/internal/model"
)

// $2..$5 are NULL for categories absent from the update; COALESCE keeps the
// stored value for those.
const mergeSizesSQL = `INSERT INTO user_preferences (user_id, size_tops, size_dresses, size_bottoms, size_shoes, updated_at)
VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), $6)
ON CONFLICT (user_id) DO UPDATE SET
	size_tops    = COALESCE($2, user_preferences.size_tops),
	size_dresses = COALESCE($3, user_preferences.size_dresses),
	size_bottoms = COALESCE($4, user_preferences.size_bottoms),
	size_shoes   = COALESCE($5, user_preferences.size_shoes),
	updated_at   = $6`

// GetPreferences returns the stored row for userID, or apperror.ErrNotFound.
func (s *Store) GetPreferences(ctx context.Context, userID int64) (*model.Preferences, error) {
	stmt, args, err := s.builder.
		Select("colors", "size_tops", "size_dresses", "size_bottoms", "size_shoes", "style_tags", "updated_at").
		From("user_preferences").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build select preferences sql: %w", err)
	}

	p := model.Preferences{UserID: userID}
	err = s.exec.QueryRow(ctx, stmt, args...).Scan(
		&p.Colors,
		&p.Sizes.Tops,
		&p.Sizes.Dresses,
		&p.Sizes.Bottoms,
		&p.Sizes.Shoes,
		&p.StyleTags,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("preferences", strconv.FormatInt(userID, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting preferences for user %d: %w", userID, err)
	}

	p.Colors = nonNil(p.Colors)
	p.StyleTags = nonNil(p.StyleTags)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// SetColors replaces the stored color set.
func (s *Store) SetColors(ctx context.Context, userID int64, colors []string) error {
	return s.replaceSet(ctx, userID, "colors", colors)
}

// SetStyleTags replaces the stored style tag set.
func (s *Store) SetStyleTags(ctx context.Context, userID int64, tags []string) error {
	return s.replaceSet(ctx, userID, "style_tags", tags)
}

// MergeSizes writes only the categories present in update.
func (s *Store) MergeSizes(ctx context.Context, userID int64, update model.SizeUpdate) error {
	_, err := s.exec.Exec(ctx, mergeSizesSQL,
		userID,
		update.Tops,
		update.Dresses,
		update.Bottoms,
		update.Shoes,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: merging sizes for user %d: %w", userID, err)
	}
	return nil
}

// replaceSet upserts one array column. column is always a literal from this file.
func (s *Store) replaceSet(ctx context.Context, userID int64, column string, values []string) error {
	stmt, args, err := s.builder.Insert("user_preferences").
		Columns("user_id", column, "updated_at").
		Values(userID, nonNil(values), time.Now().UTC()).
		Suffix(fmt.Sprintf(
			"ON CONFLICT (user_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s, updated_at = EXCLUDED.updated_at",
			column,
		)).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build upsert %s sql: %w", column, err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("postgres: saving %s for user %d: %w", column, userID, err)
	}
	return nil
}
