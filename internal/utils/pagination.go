package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Transaction listings page at DefaultPageLimit rows and never return more
// than MaxPageLimit in one response.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination is the page window requested by an admin listing.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads ?page and ?limit. Missing or invalid values fall back
// to the first page of DefaultPageLimit rows; limit is clamped to MaxPageLimit.
func ParsePagination(c *fiber.Ctx) Pagination {
	page := positiveInt(c.Query("page"), 1)
	limit := positiveInt(c.Query("limit"), DefaultPageLimit)
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Meta is the pagination block echoed next to listing data.
func (p Pagination) Meta(total int64) fiber.Map {
	pages := int64(0)
	if total > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	return fiber.Map{
		"current_page":   p.Page,
		"items_per_page": p.Limit,
		"total_items":    total,
		"total_pages":    pages,
	}
}

func positiveInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
