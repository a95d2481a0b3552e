package main

import (
	"testing"

	config "github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{
		Catalog: &config.CatalogCfg{CSVPath: "data/products.csv", EmbeddingsPath: "data/e.vec", DataDir: "data"},
		Images:  &config.ImagesCfg{BatchParallel: 4},
	}

	applyFlags(cfg, generateFlags{output: "/tmp/out.vec", concurrency: 8})

	assert.Equal(t, "data/products.csv", cfg.Catalog.CSVPath)
	assert.Equal(t, "/tmp/out.vec", cfg.Catalog.EmbeddingsPath)
	assert.Equal(t, "data", cfg.Catalog.DataDir)
	assert.Equal(t, 8, cfg.Images.BatchParallel)
}

func TestGenerateCmdFlags(t *testing.T) {
	cmd := newRootCmd()

	gen, _, err := cmd.Find([]string{"generate"})
	require.NoError(t, err)

	for _, name := range []string{"dataset", "output", "data-dir", "concurrency"} {
		assert.NotNil(t, gen.Flags().Lookup(name), name)
	}
}
