package audit

import (
	"context"
	"fmt"
)

// MaxPage bounds the page number so the row offset stays small.
const MaxPage = 10000

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxExportRows   = 10000
)

// Service serves operator queries over the audit trail.
type Service struct {
	store Store
}

// NewService constructs the query service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Query returns one page of entries, most recent first.
func (s *Service) Query(ctx context.Context, filters Filters) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, ErrStoreNotConfigured
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	params := filters.params()
	params.Offset = (page - 1) * pageSize
	params.Limit = pageSize + 1

	entries, err := s.store.Query(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("audit: query: %w", err)
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	if entries == nil {
		entries = []Entry{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}

// Export returns every matching entry without paging, capped at maxExportRows.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Entry, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	params := filters.params()
	params.Limit = maxExportRows
	entries, err := s.store.Query(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return entries, nil
}

func (f Filters) params() QueryParams {
	return QueryParams{
		ActorID:    f.ActorID,
		Action:     f.Action,
		TargetType: f.TargetType,
		From:       f.From,
		To:         f.To,
	}
}
