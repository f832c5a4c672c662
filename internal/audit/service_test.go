package audit

import (
	"context"
	"testing"
	"time"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	lastOffset int
	lastLimit  int
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastOffset = offset
	s.lastLimit = limit
	return s.rows, nil
}

func mockRow(ts, action, entity, entityID string) TimelineRow {
	tval, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{At: tval, ActorID: 1, Action: action, Entity: entity, EntityID: entityID}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{
		rows: []TimelineRow{
			mockRow("2026-03-10T10:00:00Z", "ROLE_GRANTS_REPLACE", "roles", "1"),
			mockRow("2026-03-09T09:00:00Z", "ROLE_UPDATE", "roles", "2"),
			mockRow("2026-03-08T08:00:00Z", "ROLE_CREATE", "roles", "3"),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext {
		t.Fatalf("expected hasNext true")
	}
	if result.Paging.NextPage != 2 {
		t.Fatalf("expected nextPage 2, got %d", result.Paging.NextPage)
	}
	if repo.lastLimit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastOffset)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	if _, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500}); err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastLimit != 51 {
		t.Fatalf("expected clamped limit 51, got %d", repo.lastLimit)
	}

	if _, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3}); err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastOffset != 40 {
		t.Fatalf("expected offset 40, got %d", repo.lastOffset)
	}
}

func TestServiceTimelineLastPage(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{mockRow("2026-03-10T10:00:00Z", "ROLE_DELETE", "roles", "9")}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 20})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.HasNext {
		t.Fatalf("expected hasNext false")
	}
	if result.Paging.PrevPage != 1 {
		t.Fatalf("expected prevPage 1, got %d", result.Paging.PrevPage)
	}
}
