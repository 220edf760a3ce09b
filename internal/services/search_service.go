package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"auctionsearch/internal/domain"
	"auctionsearch/internal/repos"
)

// EndingSoonWindow is how far ahead "endingSoon" looks from now.
const EndingSoonWindow = 6 * time.Hour

type ItemSearcher interface {
	Search(ctx context.Context, q repos.ItemQuery) ([]domain.Item, int, error)
}

// PageCache stores pages under a key resolved once per search, so a page
// read before an invalidation is never stored under the newer key.
type PageCache interface {
	Key(ctx context.Context, p domain.SearchParams) (string, error)
	Get(ctx context.Context, key string) (domain.Page, bool, error)
	Set(ctx context.Context, key string, page domain.Page) error
}

type SearchService struct {
	Items ItemSearcher
	Cache PageCache // optional
	Now   func() time.Time
}

func NewSearchService(items ItemSearcher) *SearchService {
	return &SearchService{Items: items, Now: time.Now}
}

// BuildQuery translates search params into a store query. Time windows are
// evaluated against now, never against the stored status.
func BuildQuery(p domain.SearchParams, now time.Time) repos.ItemQuery {
	p = p.Normalized()
	q := repos.ItemQuery{}

	if p.SearchTerm != "" {
		q.Text = p.SearchTerm
		q.Sorts = append(q.Sorts, repos.Sort{Field: repos.SortTextScore})
	}

	switch p.OrderBy {
	case domain.OrderByMake:
		q.Sorts = append(q.Sorts, repos.Sort{Field: repos.SortMake})
	case domain.OrderByNew:
		q.Sorts = append(q.Sorts, repos.Sort{Field: repos.SortCreatedAt, Desc: true})
	default:
		q.Sorts = append(q.Sorts, repos.Sort{Field: repos.SortAuctionEnd})
	}

	switch p.FilterBy {
	case domain.FilterByFinished:
		q.AuctionEndBefore = &now
	case domain.FilterByEndingSoon:
		soon := now.Add(EndingSoonWindow)
		q.AuctionEndAfter = &now
		q.AuctionEndBefore = &soon
	default:
		q.AuctionEndAfter = &now
	}

	q.Seller = p.Seller
	q.Winner = p.Winner

	q.Limit = p.PageSize
	q.Offset = p.Offset()
	return q
}

func (s *SearchService) Search(ctx context.Context, p domain.SearchParams) (domain.Page, error) {
	p = p.Normalized()

	var key string
	if s.Cache != nil {
		k, err := s.Cache.Key(ctx, p)
		if err != nil {
			log.Warn().Err(err).Msg("search cache key failed")
		} else {
			key = k
		}
	}
	if key != "" {
		page, ok, err := s.Cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("search cache read failed")
		} else if ok {
			return page, nil
		}
	}

	items, total, err := s.Items.Search(ctx, BuildQuery(p, s.Now().UTC()))
	if err != nil {
		return domain.Page{}, err
	}
	page := domain.Page{
		Results:    items,
		PageCount:  pageCount(total, p.PageSize),
		TotalCount: total,
	}

	if key != "" {
		if err := s.Cache.Set(ctx, key, page); err != nil {
			log.Warn().Err(err).Msg("search cache write failed")
		}
	}
	return page, nil
}

func pageCount(total, size int) int {
	if size < 1 {
		size = 1
	}
	n := total / size
	if total%size != 0 {
		n++
	}
	return n
}
