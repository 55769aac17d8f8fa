package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, event Event) error
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// Service records and lists audit events.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs the audit service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Record persists an audit event. Recording must never abort the operation
// being audited, so callers that treat audit as best effort use RecordAsyncSafe.
func (s *Service) Record(ctx context.Context, event Event) error {
	if s == nil || s.store == nil {
		return errors.New("audit: service not initialised")
	}
	if event.Action == "" || event.Entity == "" || event.EntityID == "" {
		return errors.New("audit: event requires action/entity/entity_id")
	}
	return s.store.Insert(ctx, event)
}

// RecordBestEffort records the event and downgrades failures to a log line.
func (s *Service) RecordBestEffort(ctx context.Context, event Event) {
	if err := s.Record(ctx, event); err != nil {
		s.logger.Error("audit record failed",
			slog.String("action", event.Action),
			slog.String("entity", event.Entity),
			slog.Any("error", err))
	}
}

// Timeline fetches audit rows with windowed paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, fmt.Errorf("audit: service not initialised")
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

	rows, err := s.store.TimelineWindow(ctx, filters, offset, pageSize+1)
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
