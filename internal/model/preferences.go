package model

import (
	"slices"
	"time"
)

// Size categories accepted by the preferences API.
const (
	SizeTops    = "tops"
	SizeDresses = "dresses"
	SizeBottoms = "bottoms"
	SizeShoes   = "shoes"
)

// SizeCategories lists the categories in display order.
var SizeCategories = []string{SizeTops, SizeDresses, SizeBottoms, SizeShoes}

// SizeOptions is the allowed size tokens per category.
var SizeOptions = map[string][]string{
	SizeTops:    {"XS", "S", "M", "L", "XL", "XXL"},
	SizeDresses: {"XS", "S", "M", "L", "XL", "XXL"},
	SizeBottoms: {"0", "2", "4", "6", "8", "10", "12", "14", "16"},
	SizeShoes:   {"5", "5.5", "6", "6.5", "7", "7.5", "8", "8.5", "9", "9.5", "10", "10.5", "11"},
}

// ValidSize reports whether value is an option for category.
func ValidSize(category, value string) bool {
	return slices.Contains(SizeOptions[category], value)
}

// Sizes maps each clothing category to a size token. An empty string means unset.
type Sizes struct {
	Tops    string `json:"tops"`
	Dresses string `json:"dresses"`
	Bottoms string `json:"bottoms"`
	Shoes   string `json:"shoes"`
}

// SizeUpdate is a partial Sizes: nil fields are left unchanged by a merge.
type SizeUpdate struct {
	Tops    *string
	Dresses *string
	Bottoms *string
	Shoes   *string
}

// Apply merges u into s and returns the result.
func (u SizeUpdate) Apply(s Sizes) Sizes {
	if u.Tops != nil {
		s.Tops = *u.Tops
	}
	if u.Dresses != nil {
		s.Dresses = *u.Dresses
	}
	if u.Bottoms != nil {
		s.Bottoms = *u.Bottoms
	}
	if u.Shoes != nil {
		s.Shoes = *u.Shoes
	}
	return s
}

// Preferences is the per-user wardrobe profile.
//
// Colors and StyleTags are sets: order is preserved as submitted but
// duplicates are removed before storage. Both are never nil once returned by
// the service, so they serialise as [] rather than null.
type Preferences struct {
	UserID    int64     `json:"-"`
	Colors    []string  `json:"colors"`
	Sizes     Sizes     `json:"sizes"`
	StyleTags []string  `json:"style_preferences"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// EmptyPreferences returns the default record for a user with no stored row.
func EmptyPreferences(userID int64) *Preferences {
	return &Preferences{
		UserID:    userID,
		Colors:    []string{},
		StyleTags: []string{},
	}
}
