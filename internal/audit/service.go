package audit

import (
	"context"
	"fmt"
)

// Repository provides the timeline window query.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// Result wraps a timeline page with its paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds a new audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of audit entries. The window reads one extra row
// to detect whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
