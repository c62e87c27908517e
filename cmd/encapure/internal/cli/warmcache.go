package cli

import (
	"github.com/spf13/cobra"
)

var warmCacheCmd = &cobra.Command{
	Use:   "warm-cache",
	Short: "Build and persist the embedding cache without serving traffic",
	Long: `Load the catalog, embed every tool, and write the embedding cache to
EMBEDDINGS_CACHE_PATH. Useful for pre-warming a deployment's cache (e.g. in a
build step) so the first "serve" after a catalog change doesn't pay the
embedding cost on the request path.

Always rebuilds, even if a cache already matches the catalog fingerprint —
use "serve" for the cache-aware startup path.`,
	RunE: runWarmCache,
}

func init() {
	rootCmd.AddCommand(warmCacheCmd)
}

func runWarmCache(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, logger, cat, err := loadConfigAndCatalog()
	if err != nil {
		return err
	}

	rt, err := bootstrap(ctx, cfg, logger, cat, biEncoderDim, crossEncoderDim, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("embedding cache written", "path", cfg.EmbeddingsCachePath,
		"tools", rt.table.Count(), "dimension", rt.table.Dimension(), "fingerprint", rt.table.Fingerprint())
	return nil
}
