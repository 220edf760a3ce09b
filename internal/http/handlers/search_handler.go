package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"auctionsearch/internal/domain"
	applog "auctionsearch/internal/log"
	"auctionsearch/internal/services"
	"auctionsearch/internal/validate"
)

type SearchHandler struct {
	Service *services.SearchService
}

// GET /api/search
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	p := parseSearchParams(c)

	page, err := h.Service.Search(c.UserContext(), p)
	if err != nil {
		applog.Error(c, "search.error", err, map[string]any{"term": p.SearchTerm})
		return renderError(c, fiber.StatusInternalServerError, "Could not load results. Please retry.")
	}
	return c.JSON(page)
}

// parseSearchParams never rejects a request: unusable values fall back to
// their defaults and the fallback is logged.
func parseSearchParams(c *fiber.Ctx) domain.SearchParams {
	p := domain.SearchParams{
		SearchTerm: validate.Term(c.Query("searchTerm")),
		Seller:     strings.TrimSpace(c.Query("seller")),
		Winner:     strings.TrimSpace(c.Query("winner")),
	}

	var ok bool
	if p.OrderBy, ok = domain.ParseOrderBy(c.Query("orderBy")); !ok {
		applog.Security(c, "validation.fallback", map[string]any{"field": "orderBy", "value": c.Query("orderBy")})
	}
	if p.FilterBy, ok = domain.ParseFilterBy(c.Query("filterBy")); !ok {
		applog.Security(c, "validation.fallback", map[string]any{"field": "filterBy", "value": c.Query("filterBy")})
	}
	if p.PageNumber, ok = validate.Page(c.Query("pageNumber"), domain.DefaultPageNumber); !ok {
		applog.Security(c, "validation.fallback", map[string]any{"field": "pageNumber", "value": c.Query("pageNumber")})
	}
	if p.PageSize, ok = validate.Page(c.Query("pageSize"), domain.DefaultPageSize); !ok {
		applog.Security(c, "validation.fallback", map[string]any{"field": "pageSize", "value": c.Query("pageSize")})
	}
	return p
}
