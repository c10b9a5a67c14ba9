package application

import (
	"context"
	"fmt"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/ports"
)

type HistoryStats struct {
	TotalGames           int
	TotalPresses         int
	FastestReactionMs    int64
	HasFastestReaction   bool
	FastestReactionSlave domain.SlaveID
}

type HistoryService struct {
	repo ports.SessionRepository
}

func NewHistoryService(repo ports.SessionRepository) *HistoryService {
	return &HistoryService{repo: repo}
}

// List returns up to limit records, newest first.
func (s *HistoryService) List(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	records, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return records, nil
}

func (s *HistoryService) Get(ctx context.Context, id string) (domain.SessionRecord, error) {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("get history record: %w", err)
	}
	return record, nil
}

func (s *HistoryService) Clear(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Stats summarizes every stored session.
func (s *HistoryService) Stats(ctx context.Context) (HistoryStats, error) {
	records, err := s.repo.List(ctx, 0)
	if err != nil {
		return HistoryStats{}, fmt.Errorf("list history: %w", err)
	}
	return Summarize(records), nil
}

func Summarize(records []domain.SessionRecord) HistoryStats {
	stats := HistoryStats{TotalGames: len(records)}
	for _, record := range records {
		stats.TotalPresses += record.TotalPresses()

		for id, ms := range record.ReactionMs {
			if !stats.HasFastestReaction || ms < stats.FastestReactionMs ||
				(ms == stats.FastestReactionMs && id < stats.FastestReactionSlave) {
				stats.FastestReactionMs = ms
				stats.FastestReactionSlave = id
				stats.HasFastestReaction = true
			}
		}
	}
	return stats
}
