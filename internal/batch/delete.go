package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/query"
	"github.com/rzpsarthak13/relbatch/internal/record"
)

// DeleteMany deletes the rows identified by the primary keys of bodies with
// one statement. Relations carried by a body are deleted first, their link
// columns filled from the parent; a child batch that deletes nothing makes the
// whole call return 0. Bodies without a complete key are skipped.
func (b *Builder) DeleteMany(ctx context.Context, spec *core.Spec, bodies []map[string]any) (int64, error) {
	if len(bodies) == 0 {
		return 0, nil
	}

	seen := make(map[string]bool, len(bodies))
	tuples := make([][]any, 0, len(bodies))
	for i, body := range bodies {
		rec := record.New(spec, b.conn)
		rec.Load(body)
		rec.MarkNotNew()
		parent := rec.ToMap()

		for _, rel := range spec.Relations {
			raw, present := body[rel.Name]
			if !present {
				continue
			}
			if _, linked := rel.LinkValues(parent); !linked {
				continue
			}
			children, ok := core.NormalizeBodies(raw)
			if !ok || len(children) == 0 {
				continue
			}
			child, err := b.lookup(rel)
			if err != nil {
				return 0, err
			}
			n, err := b.DeleteMany(ctx, child, LinkChildren(rel, parent, children))
			if err != nil {
				return 0, err
			}
			if n == 0 {
				b.logger.Warn("child delete removed nothing, aborting parent",
					zap.String("table", spec.Table),
					zap.String("relation", rel.Name),
					zap.Int("row", i))
				return 0, nil
			}
		}

		values, ok := rec.PrimaryKeyValues()
		if !ok {
			continue
		}
		key := tupleKey(values)
		if seen[key] {
			continue
		}
		seen[key] = true
		tuples = append(tuples, values)
	}

	if len(tuples) == 0 {
		return 0, nil
	}
	return b.deleteWhere(ctx, spec, query.InTuples(b.conn, spec.PrimaryKey, tuples))
}

// Delete dispatches on the payload shape:
//   - a list deletes each row by primary key (DeleteMany);
//   - a map carrying primary key values deletes the children linked to it,
//     then the row itself;
//   - a map with a "where" key deletes the rows matching that condition.
//
// Any other payload deletes nothing.
func (b *Builder) Delete(ctx context.Context, spec *core.Spec, payload any) (int64, error) {
	if core.IsList(payload) {
		bodies, ok := core.NormalizeBodies(payload)
		if !ok {
			return 0, nil
		}
		return b.DeleteMany(ctx, spec, bodies)
	}

	body, ok := payload.(map[string]any)
	if !ok || len(body) == 0 {
		return 0, nil
	}

	keys := make(map[string]any, len(spec.PrimaryKey))
	for _, pk := range spec.PrimaryKey {
		if v, ok := body[pk]; ok {
			keys[pk] = v
		}
	}
	if len(keys) > 0 {
		for _, rel := range spec.Relations {
			link, ok := rel.LinkValues(body)
			if !ok {
				continue
			}
			child, err := b.lookup(rel)
			if err != nil {
				return 0, err
			}
			if _, err := b.deleteWhere(ctx, child, query.EqAll(b.conn, link)); err != nil {
				return 0, err
			}
		}
		return b.deleteWhere(ctx, spec, query.EqAll(b.conn, keys))
	}

	cond, found, err := query.FromBody(b.conn, body)
	if !found {
		return 0, nil
	}
	if err != nil {
		return 0, core.NewInvalidArgumentError(0, "where", err.Error(), body)
	}
	return b.deleteWhere(ctx, spec, cond)
}
