package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/closetmatrix/closet-matrix/internal/apperror"
	"github.com/closetmatrix/closet-matrix/internal/model"
	"github.com/closetmatrix/closet-matrix/internal/repository"
)

// MaxColors is the most favorite colors a user may keep.
const MaxColors = 5

var hexColor = regexp.MustCompile(`^#(?:[0-9a-f]{3}|[0-9a-f]{6})$`)

// PreferencesService reads and updates a user's wardrobe preferences.
// The userID always comes from the session, never from the request body.
type PreferencesService struct {
	prefs  repository.PreferencesRepository
	logger *slog.Logger
}

func NewPreferencesService(prefs repository.PreferencesRepository, logger *slog.Logger) *PreferencesService {
	return &PreferencesService{prefs: prefs, logger: logger}
}

// Get returns the stored preferences, or an empty record if there are none yet.
func (s *PreferencesService) Get(ctx context.Context, userID int64) (*model.Preferences, error) {
	p, err := s.prefs.GetPreferences(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return model.EmptyPreferences(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("service/preferences: loading: %w", err)
	}
	return p, nil
}

// UpdateColors replaces the color set. Colors are lowercased and
// de-duplicated before the MaxColors check.
func (s *PreferencesService) UpdateColors(ctx context.Context, userID int64, colors []string) (*model.Preferences, error) {
	normalized := make([]string, 0, len(colors))
	var bad []string
	for _, c := range colors {
		c = strings.ToLower(strings.TrimSpace(c))
		if !hexColor.MatchString(c) {
			bad = append(bad, fmt.Sprintf("Invalid color %q: use #rgb or #rrggbb", c))
			continue
		}
		normalized = append(normalized, c)
	}
	if len(bad) > 0 {
		return nil, apperror.ValidationErrors(bad...)
	}

	normalized = dedupe(normalized)
	if len(normalized) > MaxColors {
		return nil, apperror.ValidationFailed("colors", fmt.Sprintf("You can select up to %d colors", MaxColors))
	}

	if err := s.prefs.SetColors(ctx, userID, normalized); err != nil {
		return nil, fmt.Errorf("service/preferences: saving colors: %w", err)
	}
	s.logger.Debug("colors updated", slog.Int64("userID", userID), slog.Int("count", len(normalized)))
	return s.Get(ctx, userID)
}

// UpdateSizes merges sizes into the stored mapping. Every key must be a known
// category and every value one of that category's options; otherwise nothing
// is written.
func (s *PreferencesService) UpdateSizes(ctx context.Context, userID int64, sizes map[string]string) (*model.Preferences, error) {
	var (
		update model.SizeUpdate
		bad    []string
	)

	keys := make([]string, 0, len(sizes))
	for k := range sizes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, category := range keys {
		value := strings.TrimSpace(sizes[category])
		if _, ok := model.SizeOptions[category]; !ok {
			bad = append(bad, fmt.Sprintf("Unknown size category %q", category))
			continue
		}
		if !model.ValidSize(category, value) {
			bad = append(bad, fmt.Sprintf("Invalid %s size %q", category, value))
			continue
		}
		switch category {
		case model.SizeTops:
			update.Tops = &value
		case model.SizeDresses:
			update.Dresses = &value
		case model.SizeBottoms:
			update.Bottoms = &value
		case model.SizeShoes:
			update.Shoes = &value
		}
	}
	if len(bad) > 0 {
		return nil, apperror.ValidationErrors(bad...)
	}

	if err := s.prefs.MergeSizes(ctx, userID, update); err != nil {
		return nil, fmt.Errorf("service/preferences: saving sizes: %w", err)
	}
	s.logger.Debug("sizes updated", slog.Int64("userID", userID), slog.Int("count", len(keys)))
	return s.Get(ctx, userID)
}

// UpdateStyleTags replaces the style tag set. Tags are trimmed; blanks and
// repeats are dropped.
func (s *PreferencesService) UpdateStyleTags(ctx context.Context, userID int64, tags []string) (*model.Preferences, error) {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	cleaned = dedupe(cleaned)

	if err := s.prefs.SetStyleTags(ctx, userID, cleaned); err != nil {
		return nil, fmt.Errorf("service/preferences: saving style tags: %w", err)
	}
	s.logger.Debug("style tags updated", slog.Int64("userID", userID), slog.Int("count", len(cleaned)))
	return s.Get(ctx, userID)
}

// dedupe keeps the first occurrence of each value, preserving order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
