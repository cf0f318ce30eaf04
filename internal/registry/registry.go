// Package registry keeps the record specs the engine writes through, completed
// with the column metadata the storage engine reports, together with the
// configuration they were loaded from.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-openapi/inflect"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/schema"
)

// SpecMetadata contains metadata about a registered spec.
type SpecMetadata struct {
	// Spec is the completed spec as lookups return it.
	Spec *core.Spec

	// Schema is the storage schema the spec was completed from, nil when the
	// spec declared its own columns.
	Schema *core.Schema

	// Config contains the table-specific configuration.
	Config InternalTableConfig

	// RegisteredAt is the timestamp when the spec was registered.
	RegisteredAt time.Time
}

// Registry manages registered specs. It is safe for concurrent use and
// implements core.SpecResolver.
type Registry struct {
	mu        sync.RWMutex
	specs     map[string]*SpecMetadata
	schemas   core.SchemaProvider
	configMgr *ConfigManager
	lifecycle *LifecycleManager
	mapper    *schema.TypeMapper
	loads     singleflight.Group
	logger    *zap.Logger
}

// NewRegistry creates a registry. schemas may be nil, in which case specs must
// declare their own columns and key.
func NewRegistry(schemas core.SchemaProvider, configMgr *ConfigManager, lifecycle *LifecycleManager, logger *zap.Logger) *Registry {
	if configMgr == nil {
		configMgr = NewConfigManager()
	}
	if lifecycle == nil {
		lifecycle = NewLifecycleManager()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		specs:     make(map[string]*SpecMetadata),
		schemas:   schemas,
		configMgr: configMgr,
		lifecycle: lifecycle,
		mapper:    schema.NewTypeMapper(),
		logger:    logger.Named("registry"),
	}
}

// Lifecycle returns the lifecycle manager hooks are added to.
func (r *Registry) Lifecycle() *LifecycleManager {
	return r.lifecycle
}

// Register completes spec and makes it available to lookups under spec.Key().
// Columns, primary key and auto-increment attribute left empty are filled
// from the storage schema. Relations configured for the table are appended
// and relations without a link get the conventional one. If a spec is
// already registered under the same key it is replaced.
func (r *Registry) Register(ctx context.Context, spec *core.Spec) (*core.Spec, error) {
	if spec == nil {
		return nil, fmt.Errorf("spec cannot be nil")
	}
	if spec.Table == "" {
		return nil, fmt.Errorf("spec table cannot be empty")
	}

	completed := *spec
	completed.Columns = make(map[string]core.Column, len(spec.Columns))
	for name, col := range spec.Columns {
		completed.Columns[name] = col
	}

	var tableSchema *core.Schema
	if len(completed.Columns) == 0 || len(completed.PrimaryKey) == 0 {
		s, err := r.loadSchema(ctx, spec.Table)
		if err != nil {
			return nil, err
		}
		tableSchema = s
		fillFromSchema(&completed, s)
	}
	r.mapper.ApplyCasters(completed.Columns)

	cfg := r.configMgr.GetTableConfig(spec.Key())
	completed.Relations = append(append([]core.Relation(nil), spec.Relations...), r.configMgr.Relations(spec.Key())...)
	for i := range completed.Relations {
		completed.Relations[i] = defaultLink(&completed, completed.Relations[i])
	}

	if err := r.lifecycle.ExecuteRegisterHooks(ctx, &completed); err != nil {
		return nil, fmt.Errorf("failed to execute register hooks for %q: %w", completed.Key(), err)
	}

	r.mu.Lock()
	r.specs[completed.Key()] = &SpecMetadata{
		Spec:         &completed,
		Schema:       tableSchema,
		Config:       cfg,
		RegisteredAt: time.Now(),
	}
	r.mu.Unlock()

	r.logger.Debug("spec registered",
		zap.String("spec", completed.Key()),
		zap.String("table", completed.Table),
		zap.Strings("primary_key", completed.PrimaryKey),
		zap.Int("relations", len(completed.Relations)))
	return &completed, nil
}

// loadSchema fetches a table's schema, collapsing concurrent loads of the
// same table into one round trip.
func (r *Registry) loadSchema(ctx context.Context, table string) (*core.Schema, error) {
	if r.schemas == nil {
		return nil, fmt.Errorf("spec %q declares no columns or key and no schema provider is set", table)
	}
	v, err, _ := r.loads.Do(table, func() (any, error) {
		return r.schemas.GetSchema(ctx, table)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load schema for %q: %w", table, err)
	}
	return v.(*core.Schema), nil
}

func fillFromSchema(spec *core.Spec, s *core.Schema) {
	if len(spec.Columns) == 0 {
		for _, col := range s.Columns {
			spec.Columns[col.Name] = col
		}
	}
	if len(spec.PrimaryKey) == 0 {
		spec.PrimaryKey = append([]string(nil), s.PrimaryKey...)
	}
	if spec.AutoIncrement == "" {
		spec.AutoIncrement = s.AutoIncrement
	}
}

// defaultLink gives a relation without a link the conventional one: the
// child column named after the singular parent table plus "_id" copies the
// parent's first key attribute.
func defaultLink(parent *core.Spec, rel core.Relation) core.Relation {
	if rel.Target == "" {
		rel.Target = rel.Name
	}
	if len(rel.Link) > 0 {
		return rel
	}
	parentKey := "id"
	if len(parent.PrimaryKey) > 0 {
		parentKey = parent.PrimaryKey[0]
	}
	rel.Link = map[string]string{inflect.Singularize(parent.Table) + "_id": parentKey}
	return rel
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (*core.Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("spec %q: %w", name, core.ErrSpecNotFound)
	}
	return meta.Spec, nil
}

// GetMetadata returns the metadata of the spec registered under name.
func (r *Registry) GetMetadata(name string) (*SpecMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("spec %q: %w", name, core.ErrSpecNotFound)
	}
	metaCopy := *meta
	return &metaCopy, nil
}

// Unregister removes the spec registered under name.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.RLock()
	meta, ok := r.specs[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("spec %q: %w", name, core.ErrSpecNotFound)
	}

	if err := r.lifecycle.ExecuteUnregisterHooks(ctx, meta.Spec); err != nil {
		return fmt.Errorf("failed to execute unregister hooks for %q: %w", name, err)
	}

	r.mu.Lock()
	delete(r.specs, name)
	r.mu.Unlock()
	return nil
}

// List returns the registered spec names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered specs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
