// Package pagination windows the admin listings (users and audit log).
package pagination

import (
	"github.com/gofiber/fiber/v2"
)

const (
	// DefaultLimit applies when the caller omits or zeroes limit
	DefaultLimit = 20

	// MaxLimit caps a single listing page
	MaxLimit = 100
)

// Params is a clamped page window. Offset feeds the SQL OFFSET clause.
type Params struct {
	Page   int `json:"page"`
	Limit  int `json:"limit"`
	Offset int `json:"-"`
}

// Meta is returned next to every listing
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// GetParams reads ?page= and ?limit=. Unparseable values fall back to the
// defaults rather than failing the listing.
func GetParams(c *fiber.Ctx) *Params {
	return NewParams(c.QueryInt("page", 1), c.QueryInt("limit", DefaultLimit))
}

// NewParams clamps page to >= 1 and limit to [1, MaxLimit]
func NewParams(page, limit int) *Params {
	page = max(page, 1)
	switch {
	case limit < 1:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return &Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// GetMeta describes the window params cuts out of total rows
func GetMeta(params *Params, total int64) *Meta {
	limit := int64(params.Limit)
	pages := int((total + limit - 1) / limit)

	return &Meta{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    params.Page < pages,
		HasPrev:    params.Page > 1,
	}
}
