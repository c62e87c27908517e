package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dannyavrs/encapure/biencoder"
	"github.com/dannyavrs/encapure/catalog"
	"github.com/dannyavrs/encapure/config"
	"github.com/dannyavrs/encapure/crossencoder"
	"github.com/dannyavrs/encapure/embedstore"
	"github.com/dannyavrs/encapure/inference"
	"github.com/dannyavrs/encapure/observability"
	"github.com/dannyavrs/encapure/tokenize"
)

// runtime bundles everything serve/warm-cache need, assembled in one
// place so the two subcommands don't duplicate startup wiring
// (validate-catalog shares only loadConfigAndCatalog) (spec.md §4.9, grounded on kamusis-axon-cli's
// internal/config.Load() being called identically from every subcommand).
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	catalog   *catalog.Catalog
	tokenizer tokenize.Tokenizer
	beManager *inference.Manager
	ceManager *inference.Manager
	biencoder *biencoder.Engine
	crossenc  *crossencoder.Engine
	table     *embedstore.EmbeddingTable
	cacheHit  bool
}

// loadConfigAndCatalog is the part every subcommand needs: config, a
// logger, and the parsed+fingerprinted catalog.
func loadConfigAndCatalog() (*config.Config, *slog.Logger, *catalog.Catalog, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	c, err := catalog.Load(logger, cfg.CatalogPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load catalog %s: %w", cfg.CatalogPath, err)
	}
	return cfg, logger, c, nil
}

// bootstrap builds the full inference stack: tokenizer, session pools,
// bi-/cross-encoder engines, and the embedding table (loaded from cache
// when the fingerprint matches, rebuilt and atomically cached otherwise —
// spec.md §4.4 "Cache").
//
// biEngineDim/ceEngineDim are the embedding/classification-head
// dimensions ReferenceRunner stands in for absent a real ONNX (or
// similar) backend. Production deployments swap the SessionFactory args
// for one that loads a real model and keep everything else unchanged.
func bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger, c *catalog.Catalog, biEngineDim, ceEngineDim int, forceRebuild bool) (*runtime, error) {
	tok, err := tokenize.NewWordPieceTokenizer(cfg.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer vocab %s: %w", cfg.VocabPath, err)
	}

	cores := inference.NumCPU()
	infCfg := cfg.InferenceConfig(cores)

	beManager, err := inference.New(infCfg, cores, inference.NewReferenceSessionFactory(biEngineDim), logger)
	if err != nil {
		return nil, fmt.Errorf("build bi-encoder pool: %w", err)
	}
	ceManager, err := inference.New(infCfg, cores, inference.NewReferenceSessionFactory(ceEngineDim), logger)
	if err != nil {
		return nil, fmt.Errorf("build cross-encoder pool: %w", err)
	}

	be := biencoder.New(beManager, tok, biencoder.Config{MaxTokens: cfg.MaxSeqLength, BatchSize: cfg.BatchSize})
	ce := crossencoder.New(ceManager, tok, crossencoder.Config{MaxTokens: cfg.MaxSeqLength, BatchSize: cfg.BatchSize})

	dummy := inference.Inputs{
		InputIDs:      [][]int64{{0, 0}},
		AttentionMask: [][]int64{{1, 1}},
		TokenTypeIDs:  [][]int64{{0, 0}},
	}
	if err := beManager.Warmup(ctx, dummy); err != nil {
		return nil, fmt.Errorf("warm up bi-encoder pool: %w", err)
	}
	if err := ceManager.Warmup(ctx, dummy); err != nil {
		return nil, fmt.Errorf("warm up cross-encoder pool: %w", err)
	}

	var table *embedstore.EmbeddingTable
	var cacheHit bool
	if !forceRebuild {
		table, cacheHit, err = embedstore.Load(cfg.EmbeddingsCachePath, c.Fingerprint(), biEngineDim)
		if err != nil {
			logger.Warn("embedding cache read failed, treating as missing", "path", cfg.EmbeddingsCachePath, "error", err)
		}
	}
	if !cacheHit {
		table, err = embedstore.Build(ctx, be, c)
		if err != nil {
			return nil, fmt.Errorf("build embedding table: %w", err)
		}
		if err := embedstore.Save(table, cfg.EmbeddingsCachePath); err != nil {
			logger.Warn("embedding cache write failed, continuing without a persisted cache", "path", cfg.EmbeddingsCachePath, "error", err)
		}
	}

	return &runtime{
		cfg: cfg, logger: logger, catalog: c, tokenizer: tok,
		beManager: beManager, ceManager: ceManager,
		biencoder: be, crossenc: ce, table: table, cacheHit: cacheHit,
	}, nil
}

func (rt *runtime) Close() {
	if err := rt.beManager.Close(); err != nil {
		rt.logger.Error("closing bi-encoder pool", "error", err)
	}
	if err := rt.ceManager.Close(); err != nil {
		rt.logger.Error("closing cross-encoder pool", "error", err)
	}
}
