// Package cascade writes one row at a time together with the related rows
// nested in its body, recursing through every relation present.
package cascade

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/batch"
	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/record"
)

// Engine runs per-row cascades. Delete policies are applied through the
// batch builder so both paths share the same statements.
type Engine struct {
	builder *batch.Builder
	conn    core.Conn
	specs   core.SpecResolver
	logger  *zap.Logger
}

// NewEngine creates an Engine over builder's connection.
func NewEngine(builder *batch.Builder, specs core.SpecResolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		builder: builder,
		conn:    builder.Conn(),
		specs:   specs,
		logger:  logger.Named("cascade"),
	}
}

// Create inserts body as a new row, then creates every related row nested in
// it with the link columns taken from the persisted parent. The returned map
// holds the stored attributes plus the created children under each relation
// name.
func (e *Engine) Create(ctx context.Context, spec *core.Spec, body map[string]any) (map[string]any, error) {
	rec := record.New(spec, e.conn)
	rec.Load(body)
	if err := rec.Save(ctx); err != nil {
		return nil, err
	}
	out := rec.ToMap()

	for _, rel := range spec.Relations {
		children, child, err := e.children(rel, body)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			continue
		}

		created := make([]map[string]any, 0, len(children))
		for _, c := range batch.LinkChildren(rel, out, children) {
			row, err := e.Create(ctx, child, c)
			if err != nil {
				return nil, fmt.Errorf("relation %q: %w", rel.Name, err)
			}
			created = append(created, row)
		}
		out[rel.Name] = created
	}
	return out, nil
}

// Update saves body against the stored row it matches in existing, inserting
// it when there is none. For every relation present the delete policy runs,
// the stored children are fetched once, and each child is updated the same
// way. The returned map mirrors Create's.
func (e *Engine) Update(ctx context.Context, spec *core.Spec, body map[string]any, existing []map[string]any) (map[string]any, error) {
	rec := record.New(spec, e.conn)
	if match := CheckExist(body, existing, spec.PrimaryKey); match != nil {
		rec.SetOldAttributes(match)
	}
	rec.Load(body)
	if err := rec.Save(ctx); err != nil {
		return nil, err
	}
	out := rec.ToMap()

	for _, rel := range spec.Relations {
		children, child, err := e.children(rel, body)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			continue
		}

		linked := batch.LinkChildren(rel, out, children)
		if err := e.builder.ApplyDeletePolicy(ctx, rel, child, out, linked); err != nil {
			return nil, err
		}
		stored, err := e.FindExists(ctx, child, linked)
		if err != nil {
			return nil, fmt.Errorf("relation %q: %w", rel.Name, err)
		}
		e.logger.Debug("updating related rows",
			zap.String("table", spec.Table),
			zap.String("relation", rel.Name),
			zap.Int("rows", len(linked)),
			zap.Int("stored", len(stored)))

		updated := make([]map[string]any, 0, len(linked))
		for _, c := range linked {
			row, err := e.Update(ctx, child, c, stored)
			if err != nil {
				return nil, fmt.Errorf("relation %q: %w", rel.Name, err)
			}
			updated = append(updated, row)
		}
		out[rel.Name] = updated
	}
	return out, nil
}

// children returns the nested bodies of rel and its target spec. Both are nil
// when the body does not carry the relation.
func (e *Engine) children(rel core.Relation, body map[string]any) ([]map[string]any, *core.Spec, error) {
	raw, present := body[rel.Name]
	if !present || raw == nil {
		return nil, nil, nil
	}
	children, ok := core.NormalizeBodies(raw)
	if !ok {
		return nil, nil, core.NewInvalidArgumentError(0, rel.Name, "is not a row or list of rows", body)
	}
	if len(children) == 0 {
		return nil, nil, nil
	}
	if e.specs == nil {
		return nil, nil, fmt.Errorf("relation %q: %w", rel.Name, core.ErrSpecNotFound)
	}
	child, err := e.specs.Lookup(rel.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("relation %q: %w", rel.Name, err)
	}
	return children, child, nil
}
