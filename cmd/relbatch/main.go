// Command relbatch persists a JSON payload file to a MySQL table through the
// relbatch client.
//
//	relbatch -config relbatch.yaml -tables orders,items -table orders -op create -payload orders.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/relbatch/pkg/relbatch"
)

type options struct {
	configPath  string
	tables      string
	table       string
	op          string
	payloadPath string
	allowUpdate bool
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	flag.StringVar(&opts.tables, "tables", "", "comma separated tables to register; defaults to -table")
	flag.StringVar(&opts.table, "table", "", "table the payload is written to")
	flag.StringVar(&opts.op, "op", "create", "operation: create, update, upsert or delete")
	flag.StringVar(&opts.payloadPath, "payload", "", "path to a JSON payload file, - for stdin")
	flag.BoolVar(&opts.allowUpdate, "allow-update", true, "upsert updates non-key columns of existing rows")
	flag.BoolVar(&opts.verbose, "v", false, "log statements")
	flag.Parse()

	logger, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("relbatch failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	if opts.table == "" {
		return fmt.Errorf("-table is required")
	}

	config, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	payload, err := loadPayload(opts.payloadPath)
	if err != nil {
		return err
	}

	client, err := relbatch.NewClient(ctx, config, relbatch.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close client", zap.Error(err))
		}
	}()

	for _, name := range tableList(opts) {
		spec, err := client.Register(ctx, &relbatch.Spec{Table: name})
		if err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
		logger.Info("registered table",
			zap.String("table", spec.Table),
			zap.Strings("primary_key", spec.PrimaryKey),
			zap.Int("relations", len(spec.Relations)))
	}

	if config.Events.Enabled {
		err := client.Subscribe("", func(_ context.Context, e *relbatch.MutationEvent) error {
			logger.Info("mutation",
				zap.String("table", e.Table),
				zap.String("operation", string(e.Operation)),
				zap.Int64("rows_affected", e.RowsAffected))
			return nil
		})
		if err != nil {
			return err
		}
		if err := client.Start(ctx); err != nil {
			return fmt.Errorf("failed to start event dispatcher: %w", err)
		}
	}

	out, err := execute(ctx, client, opts, payload)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(out)
}

func execute(ctx context.Context, client relbatch.Client, opts options, payload any) (any, error) {
	switch opts.op {
	case "create":
		return client.Create(ctx, opts.table, payload)
	case "update":
		return client.Update(ctx, opts.table, payload)
	case "upsert":
		bodies, err := rows(payload)
		if err != nil {
			return nil, err
		}
		n, err := client.Upsert(ctx, opts.table, bodies, opts.allowUpdate)
		return map[string]int64{"affected": n}, err
	case "delete":
		n, err := client.Delete(ctx, opts.table, payload)
		return map[string]int64{"affected": n}, err
	default:
		return nil, fmt.Errorf("unknown operation %q", opts.op)
	}
}

func tableList(opts options) []string {
	if opts.tables == "" {
		return []string{opts.table}
	}
	var out []string
	for _, name := range strings.Split(opts.tables, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func loadConfig(path string) (*relbatch.Config, error) {
	config := relbatch.DefaultConfig()
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

func loadPayload(path string) (any, error) {
	var data []byte
	var err error
	switch path {
	case "":
		return nil, fmt.Errorf("-payload is required")
	case "-":
		data, err = io.ReadAll(os.Stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return payload, nil
}

func rows(payload any) ([]map[string]any, error) {
	switch v := payload.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("payload item %d is not an object", i)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("payload must be an object or an array of objects")
	}
}
