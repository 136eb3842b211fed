package enums

import "fmt"

// ItemCategory represents the kinds of bookable inventory hosts can list.
type ItemCategory string

const (
	ItemCategoryTrip           ItemCategory = "trip"
	ItemCategoryEvent          ItemCategory = "event"
	ItemCategoryHotel          ItemCategory = "hotel"
	ItemCategoryAdventurePlace ItemCategory = "adventure_place"
)

var validItemCategories = []ItemCategory{
	ItemCategoryTrip,
	ItemCategoryEvent,
	ItemCategoryHotel,
	ItemCategoryAdventurePlace,
}

// String implements fmt.Stringer.
func (c ItemCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ItemCategory.
func (c ItemCategory) IsValid() bool {
	for _, candidate := range validItemCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// DateScoped reports whether the category sells per visit date. Trips and
// events are single-occurrence and book against one sentinel date.
func (c ItemCategory) DateScoped() bool {
	return c == ItemCategoryHotel || c == ItemCategoryAdventurePlace
}

// ParseItemCategory converts raw input into an ItemCategory.
func ParseItemCategory(value string) (ItemCategory, error) {
	for _, candidate := range validItemCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item category %q", value)
}
