package main

import (
	"fmt"
	"os"
	"time"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/core/diish"
	"recipe-substitution/internal/core/recipesim"
	"recipe-substitution/internal/core/substitution"
	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/pkg/common"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func statsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Build the dictionary and co-occurrence statistics from the corpus lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a := cfg.Artifacts
			start := time.Now()

			c, err := corpus.LoadIngredients(a.Path(a.CorpusIngredients))
			if err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}
			v := vocab.Build(c.Recipes())
			common.LogInfo("Vocabulary built", zap.Int("tokens", v.Size()), zap.Int("recipes", c.Len()))

			f, err := os.Create(a.Path(a.Dictionary))
			if err != nil {
				return err
			}
			if err := v.Write(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			if err := corpus.SaveMatrix(a.Path(a.Cooccurrence), corpus.BuildProfiles(v, c.Recipes())); err != nil {
				return fmt.Errorf("failed to write co-occurrence matrix: %w", err)
			}
			if err := corpus.SaveMatrix(a.Path(a.PairCounts), corpus.BuildPairCounts(v, c.Recipes())); err != nil {
				return fmt.Errorf("failed to write pair counts: %w", err)
			}
			if err := corpus.SaveContextTensors(a.Path(a.ContextDir), v, corpus.BuildContextTensors(v, c.Recipes())); err != nil {
				return err
			}

			common.LogInfo("Corpus statistics written",
				zap.String("dir", a.Dir),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil
		},
	}
}

func vectorsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "vectors",
		Short: "Encode the corpus TF-IDF vectors into the binary memory-mapped format",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a := cfg.Artifacts

			v, err := vocab.Load(a.Path(a.Dictionary))
			if err != nil {
				return fmt.Errorf("failed to load dictionary: %w", err)
			}
			c, err := corpus.LoadIngredients(a.Path(a.CorpusIngredients))
			if err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}

			vectors, err := recipesim.TransformCorpus(recipesim.NewTFIDF(v), c)
			if err != nil {
				return err
			}
			path := a.Path(a.CorpusVectors)
			if err := corpus.SaveBinaryVectors(path, vectors); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			common.LogInfo("Corpus vectors written",
				zap.String("path", path),
				zap.Int("rows", vectors.Len()),
				zap.Int("dim", vectors.Dim()),
			)
			return nil
		},
	}
}

func diishCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "diish",
		Short: "Precompute the composite score cache from all four signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			e, err := substitution.LoadScorer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			start := time.Now()
			scores, err := diish.Precompute(cmd.Context(), e.Scorer, cfg.Engine.Workers)
			if err != nil {
				return err
			}
			path := cfg.Artifacts.Path(cfg.Artifacts.ScoreCache)
			if err := scores.Save(path); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			common.LogInfo("Score cache written",
				zap.String("path", path),
				zap.Int("tokens", scores.Size()),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil
		},
	}
}
