package relbatch

import (
	"context"
)

// Table is a Client bound to one registered spec.
type Table interface {
	// Name returns the spec name the table is bound to.
	Name() string

	// Spec returns the registered spec.
	Spec() (*Spec, error)

	// Create persists payload, see Client.Create.
	Create(ctx context.Context, payload any) (*Result, error)

	// Update persists payload, see Client.Update.
	Update(ctx context.Context, payload any) (*Result, error)

	// Delete deletes by key, condition or list, see Client.Delete.
	Delete(ctx context.Context, payload any) (int64, error)

	// Insert writes bodies with one statement.
	Insert(ctx context.Context, bodies []map[string]any, mode Mode) (int64, error)

	// Upsert writes bodies and their children.
	Upsert(ctx context.Context, bodies []map[string]any, allowUpdate bool) (int64, error)

	// UpdateMany updates bodies matched on refCols.
	UpdateMany(ctx context.Context, bodies []map[string]any, refCols ...string) (int64, error)

	// DeleteMany deletes bodies by primary key.
	DeleteMany(ctx context.Context, bodies []map[string]any) (int64, error)

	// FindExists returns the stored rows whose keys appear among rows.
	FindExists(ctx context.Context, rows []map[string]any) ([]map[string]any, error)
}

type tableWrapper struct {
	client Client
	name   string
}

func (tw *tableWrapper) Name() string {
	return tw.name
}

func (tw *tableWrapper) Spec() (*Spec, error) {
	return tw.client.Lookup(tw.name)
}

func (tw *tableWrapper) Create(ctx context.Context, payload any) (*Result, error) {
	return tw.client.Create(ctx, tw.name, payload)
}

func (tw *tableWrapper) Update(ctx context.Context, payload any) (*Result, error) {
	return tw.client.Update(ctx, tw.name, payload)
}

func (tw *tableWrapper) Delete(ctx context.Context, payload any) (int64, error) {
	return tw.client.Delete(ctx, tw.name, payload)
}

func (tw *tableWrapper) Insert(ctx context.Context, bodies []map[string]any, mode Mode) (int64, error) {
	return tw.client.Insert(ctx, tw.name, bodies, mode)
}

func (tw *tableWrapper) Upsert(ctx context.Context, bodies []map[string]any, allowUpdate bool) (int64, error) {
	return tw.client.Upsert(ctx, tw.name, bodies, allowUpdate)
}

func (tw *tableWrapper) UpdateMany(ctx context.Context, bodies []map[string]any, refCols ...string) (int64, error) {
	return tw.client.UpdateMany(ctx, tw.name, bodies, refCols...)
}

func (tw *tableWrapper) DeleteMany(ctx context.Context, bodies []map[string]any) (int64, error) {
	return tw.client.DeleteMany(ctx, tw.name, bodies)
}

func (tw *tableWrapper) FindExists(ctx context.Context, rows []map[string]any) ([]map[string]any, error) {
	return tw.client.FindExists(ctx, tw.name, rows)
}
