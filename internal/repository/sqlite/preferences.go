package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
	"github.com/closetmatrix/closet-matrix/internal/model"
)

// GetPreferences returns the stored row for userID, or apperror.ErrNotFound.
func (db *DB) GetPreferences(ctx context.Context, userID int64) (*model.Preferences, error) {
	var (
		p         = model.Preferences{UserID: userID}
		colors    string
		styleTags string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT colors, size_tops, size_dresses, size_bottoms, size_shoes, style_tags, updated_at
		 FROM user_preferences WHERE user_id = ?`,
		userID,
	).Scan(
		&colors,
		&p.Sizes.Tops,
		&p.Sizes.Dresses,
		&p.Sizes.Bottoms,
		&p.Sizes.Shoes,
		&styleTags,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("preferences", strconv.FormatInt(userID, 10))
		}
		return nil, fmt.Errorf("sqlite: getting preferences for user %d: %w", userID, err)
	}

	if err := json.Unmarshal([]byte(colors), &p.Colors); err != nil {
		return nil, fmt.Errorf("sqlite: decoding colors for user %d: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(styleTags), &p.StyleTags); err != nil {
		return nil, fmt.Errorf("sqlite: decoding style tags for user %d: %w", userID, err)
	}

	return &p, nil
}

// SetColors replaces the stored color set.
func (db *DB) SetColors(ctx context.Context, userID int64, colors []string) error {
	encoded, err := encodeSet(colors)
	if err != nil {
		return fmt.Errorf("sqlite: encoding colors: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, colors, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			colors = excluded.colors,
			updated_at = excluded.updated_at`,
		userID, encoded, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving colors for user %d: %w", userID, err)
	}
	return nil
}

// MergeSizes writes only the categories present in update. A NULL parameter
// keeps the existing column through COALESCE, so the merge is one statement.
func (db *DB) MergeSizes(ctx context.Context, userID int64, update model.SizeUpdate) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, size_tops, size_dresses, size_bottoms, size_shoes, updated_at)
		 VALUES (?1, COALESCE(?2, ''), COALESCE(?3, ''), COALESCE(?4, ''), COALESCE(?5, ''), ?6)
		 ON CONFLICT(user_id) DO UPDATE SET
			size_tops    = COALESCE(?2, size_tops),
			size_dresses = COALESCE(?3, size_dresses),
			size_bottoms = COALESCE(?4, size_bottoms),
			size_shoes   = COALESCE(?5, size_shoes),
			updated_at   = ?6`,
		userID,
		update.Tops,
		update.Dresses,
		update.Bottoms,
		update.Shoes,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: merging sizes for user %d: %w", userID, err)
	}
	return nil
}

// SetStyleTags replaces the stored style tag set.
func (db *DB) SetStyleTags(ctx context.Context, userID int64, tags []string) error {
	encoded, err := encodeSet(tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding style tags: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, style_tags, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			style_tags = excluded.style_tags,
			updated_at = excluded.updated_at`,
		userID, encoded, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving style tags for user %d: %w", userID, err)
	}
	return nil
}

// encodeSet stores a nil slice as "[]" so reads never produce null.
func encodeSet(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
