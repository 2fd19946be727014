package main

import (
	"context"
	"log"
	"time"

	"conductor/internal/cerrors"
	"conductor/internal/config"
	"conductor/internal/datasource/file"
	csvparse "conductor/internal/parser/csv"
	"conductor/internal/pipeline"
	"conductor/internal/schema"
	"conductor/internal/search"
	"conductor/internal/storage"
)

// Function variables used to introduce test seams. In production these point
// at the real constructors; tests override them with fakes.
var (
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}

	newSearchClientFn = func(cfg search.Config) (*search.Client, error) {
		return search.NewClient(cfg)
	}
)

// runUpload streams the configured CSV file(s) into the relational table.
func runUpload(ctx context.Context, cfg config.Config, progress bool) error {
	paths, err := inputPaths(cfg)
	if err != nil {
		return err
	}

	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:  cfg.Storage.Kind,
		DSN:   cfg.Storage.DB.DSN,
		Table: cfg.Storage.DB.Table,
	})
	if err != nil {
		return err
	}
	defer repo.Close()

	opts := pipelineOptions(cfg, progress)

	if cfg.Storage.DB.AutoCreateTable {
		target, err := headerTarget(ctx, paths[0], opts.Delimiter, repo.Table())
		if err != nil {
			return err
		}
		if err := storage.EnsureTable(ctx, repo, target); err != nil {
			return err
		}
		log.Printf("storage: table ensured: %s", repo.Table())
	}

	cols, err := repo.Columns(ctx)
	if err != nil {
		return err
	}
	target := schema.Target{
		Name:         repo.Table(),
		SystemFields: cfg.Storage.DB.SystemFields,
	}
	for _, c := range cols {
		target.Fields = append(target.Fields, schema.Field{
			Name: c.Name, Type: c.Type, Nullable: c.Nullable,
		})
	}

	// System-managed columns are the table's job; they are excluded from
	// header matching and from the INSERT column list alike.
	backend := storage.NewTableBackend(repo, target.ExpectedNames())
	res, err := pipeline.RunFiles(ctx, paths, backend, target, opts)
	if err != nil {
		return err
	}
	log.Printf("upload: done: files=%d processed=%d written=%d",
		len(paths), res.TotalProcessed, res.TotalWritten)
	return nil
}

// runIndex streams the configured CSV file(s) into the search index. The
// target schema is the index's live field mapping.
func runIndex(ctx context.Context, cfg config.Config, progress bool) error {
	paths, err := inputPaths(cfg)
	if err != nil {
		return err
	}

	client, err := newSearchClientFn(searchConfig(cfg))
	if err != nil {
		return err
	}

	target, err := client.Mapping(ctx)
	if err != nil {
		return err
	}

	res, err := pipeline.RunFiles(ctx, paths, client, target, pipelineOptions(cfg, progress))
	if err != nil {
		return err
	}
	log.Printf("index: done: files=%d processed=%d written=%d",
		len(paths), res.TotalProcessed, res.TotalWritten)
	return nil
}

// runReindex streams every row of the relational table into the search
// index via a server-side cursor.
func runReindex(ctx context.Context, cfg config.Config) error {
	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:  cfg.Storage.Kind,
		DSN:   cfg.Storage.DB.DSN,
		Table: cfg.Storage.DB.Table,
	})
	if err != nil {
		return err
	}
	defer repo.Close()

	client, err := newSearchClientFn(searchConfig(cfg))
	if err != nil {
		return err
	}

	res, err := pipeline.Reindex(ctx, repo, client, pipeline.ReindexOptions{
		ReadChunkSize:  cfg.Runtime.ReadChunkSize,
		WriteBatchSize: cfg.Runtime.BatchSize,
		MaxRetries:     cfg.Runtime.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.Runtime.RetryBaseMS) * time.Millisecond,
		LogDir:         cfg.Logs.Dir,
	})
	if err != nil {
		return err
	}
	log.Printf("reindex: done: read=%d indexed=%d", res.TotalProcessed, res.TotalWritten)
	return nil
}

// inputPaths resolves the run's input files: the manifest when one is
// configured, otherwise the single configured path.
func inputPaths(cfg config.Config) ([]string, error) {
	if cfg.Source.File.List != "" {
		return file.ReadPathList(cfg.Source.File.List)
	}
	return []string{cfg.Source.File.Path}, nil
}

func pipelineOptions(cfg config.Config, progress bool) pipeline.Options {
	return pipeline.Options{
		Delimiter:      cfg.Parser.Options.String("delimiter", ","),
		BatchSize:      cfg.Runtime.BatchSize,
		MaxRetries:     cfg.Runtime.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.Runtime.RetryBaseMS) * time.Millisecond,
		LogDir:         cfg.Logs.Dir,
		ShowProgress:   progress,
	}
}

func searchConfig(cfg config.Config) search.Config {
	return search.Config{
		BaseURL:      cfg.Search.URL,
		Index:        cfg.Search.Index,
		SystemFields: cfg.Search.SystemFields,
		Refresh:      cfg.Search.Refresh,
	}
}

// headerTarget derives a text-typed target schema from the first line of the
// input file, used to auto-create the destination table before the catalog
// is consulted.
func headerTarget(ctx context.Context, path, delimiter, table string) (schema.Target, error) {
	src := file.NewLocal(path)
	lines, err := src.OpenLines(ctx)
	if err != nil {
		return schema.Target{}, err
	}
	defer lines.Close()

	if !lines.Next() {
		if err := lines.Err(); err != nil {
			return schema.Target{}, err
		}
		return schema.Target{}, cerrors.Validation(
			"input has no header line: "+path,
			"ensure the first line of the file names the destination columns",
		)
	}
	headers, err := csvparse.ParseLine(lines.Text(), delimiter, true)
	if err != nil {
		return schema.Target{}, err
	}
	if violations := schema.ValidateHeaders(headers); len(violations) > 0 {
		return schema.Target{}, schema.StructuralError(violations)
	}

	target := schema.Target{Name: table}
	for _, h := range headers {
		target.Fields = append(target.Fields, schema.Field{Name: h, Type: "text", Nullable: true})
	}
	return target, nil
}
