// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/phishcoach/internal/domain"
)

// Repository journals trainee judgments and language model exchanges.
type Repository interface {
	// RecordJudgment stores a flag decision and returns it with its ID set.
	RecordJudgment(ctx context.Context, j domain.Judgment) (domain.Judgment, error)

	// ListJudgments returns the most recent judgments, newest first.
	ListJudgments(ctx context.Context, limit int) ([]domain.Judgment, error)

	// Score tallies all recorded judgments by outcome.
	Score(ctx context.Context) (domain.Score, error)

	// RecordExchange stores one language model round trip.
	RecordExchange(ctx context.Context, ex domain.Exchange) error

	// PruneExchanges deletes exchanges older than ttl and returns how many were removed.
	PruneExchanges(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
