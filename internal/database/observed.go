package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// Journal records mutating statements before they run.
type Journal interface {
	Append(ctx context.Context, stmt core.Statement) (string, error)
	Acknowledge(ctx context.Context, table, id string) error
}

// ObservedConn decorates a core.Conn: every mutating statement is journaled
// before it runs, acknowledged after it succeeds and announced as a
// core.MutationEvent. Queries pass straight through.
type ObservedConn struct {
	core.Conn
	journal Journal
	events  core.EventQueue
	logger  *zap.Logger
}

// Observe wraps conn. A nil journal or queue disables that part.
func Observe(conn core.Conn, journal Journal, events core.EventQueue, logger *zap.Logger) *ObservedConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObservedConn{
		Conn:    conn,
		journal: journal,
		events:  events,
		logger:  logger.Named("observed"),
	}
}

// Exec journals, runs and announces a mutating statement.
func (o *ObservedConn) Exec(ctx context.Context, stmt core.Statement) (core.Result, error) {
	var entryID string
	if o.journal != nil {
		id, err := o.journal.Append(ctx, stmt)
		if err != nil {
			return core.Result{}, fmt.Errorf("failed to journal statement: %w", err)
		}
		entryID = id
	}

	res, err := o.Conn.Exec(ctx, stmt)
	if err != nil {
		return core.Result{}, err
	}

	if o.journal != nil {
		if err := o.journal.Acknowledge(ctx, stmt.Table, entryID); err != nil {
			// The statement already ran; an unacknowledged entry is only stale.
			o.logger.Warn("failed to acknowledge journal entry",
				zap.String("table", stmt.Table),
				zap.String("entry", entryID),
				zap.Error(err))
		}
	}

	if o.events != nil {
		event := &core.MutationEvent{
			ID:           uuid.NewString(),
			Table:        stmt.Table,
			Operation:    stmt.Op,
			SQL:          stmt.SQL,
			Args:         stmt.Args,
			RowsAffected: res.RowsAffected,
			LastInsertID: res.LastInsertID,
			Timestamp:    time.Now(),
		}
		if err := o.events.Enqueue(ctx, event); err != nil {
			o.logger.Warn("failed to enqueue mutation event",
				zap.String("table", stmt.Table),
				zap.String("op", string(stmt.Op)),
				zap.Error(err))
		}
	}

	return res, nil
}
