package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

type fakeJournal struct {
	appended []core.Statement
	acked    []string
	err      error
}

func (j *fakeJournal) Append(_ context.Context, stmt core.Statement) (string, error) {
	if j.err != nil {
		return "", j.err
	}
	j.appended = append(j.appended, stmt)
	return "entry-1", nil
}

func (j *fakeJournal) Acknowledge(_ context.Context, _ string, id string) error {
	j.acked = append(j.acked, id)
	return nil
}

type fakeQueue struct {
	events []*core.MutationEvent
}

func (q *fakeQueue) Enqueue(_ context.Context, e *core.MutationEvent) error {
	q.events = append(q.events, e)
	return nil
}

func (q *fakeQueue) Dequeue(context.Context, int) ([]*core.MutationEvent, error) { return nil, nil }
func (q *fakeQueue) Size() int                                                  { return len(q.events) }
func (q *fakeQueue) Close() error                                               { return nil }

func TestObservedConnJournalsAndAnnounces(t *testing.T) {
	m, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `orders` WHERE `id` IN (?)")).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	journal := &fakeJournal{}
	queue := &fakeQueue{}
	conn := Observe(m, journal, queue, nil)

	stmt := core.Statement{
		SQL:   "DELETE FROM `orders` WHERE `id` IN (?)",
		Args:  []any{1},
		Table: "orders",
		Op:    core.OperationDelete,
	}
	res, err := conn.Exec(context.Background(), stmt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	require.Len(t, journal.appended, 1)
	assert.Equal(t, []string{"entry-1"}, journal.acked)
	require.Len(t, queue.events, 1)
	assert.Equal(t, "orders", queue.events[0].Table)
	assert.Equal(t, core.OperationDelete, queue.events[0].Operation)
	assert.Equal(t, int64(1), queue.events[0].RowsAffected)
	assert.NotEmpty(t, queue.events[0].ID)
	assert.Equal(t, "`orders`", conn.QuoteTableName("orders"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObservedConnJournalFailureStopsStatement(t *testing.T) {
	m, mock := newMock(t)
	conn := Observe(m, &fakeJournal{err: errors.New("kv down")}, nil, nil)

	_, err := conn.Exec(context.Background(), core.Statement{SQL: "DELETE FROM `t`", Table: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kv down")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObservedConnFailedStatementIsNotAnnounced(t *testing.T) {
	m, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `t`")).WillReturnError(errors.New("lock wait timeout"))

	journal := &fakeJournal{}
	queue := &fakeQueue{}
	_, err := Observe(m, journal, queue, nil).Exec(context.Background(), core.Statement{SQL: "DELETE FROM `t`", Table: "t"})
	require.Error(t, err)
	assert.Len(t, journal.appended, 1)
	assert.Empty(t, journal.acked)
	assert.Empty(t, queue.events)
}
