package main

import (
	"fmt"
	"os"
	"time"

	"recipe-substitution/internal/core/ghg"
	"recipe-substitution/internal/core/textclean"
	"recipe-substitution/internal/pkg/common"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func ghgCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ghg",
		Short: "Fetch GHG values from the knowledge base and refresh the snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.KnowledgeBase.Enabled {
				return fmt.Errorf("knowledge base is disabled")
			}
			a := cfg.Artifacts

			synonyms := a.Path(a.Synonyms)
			if _, err := os.Stat(synonyms); err != nil {
				synonyms = ""
			}
			var normalize func(string) string
			if c, err := textclean.Load(a.Path(a.FoodNames), synonyms); err == nil {
				normalize = c.FilterIngredient
			} else {
				common.LogWarn("Food names unavailable, storing knowledge base names as-is", zap.Error(err))
			}

			stores := []ghg.SnapshotStore{ghg.NewFileSnapshotStore(a.Path(a.GHGSnapshot))}
			if cfg.Redis.Enabled {
				rs, err := ghg.NewRedisSnapshotStore(cmd.Context(), cfg.Redis)
				if err != nil {
					return err
				}
				defer rs.Close()
				stores = append(stores, rs)
			}

			// 不允許改用舊快照
			table, _, err := ghg.NewLoader(ghg.NewClient(cfg.KnowledgeBase), normalize).Load(cmd.Context())
			if err != nil {
				return err
			}
			snap := table.Snapshot("knowledge_base", time.Now())
			for _, s := range stores {
				if err := s.Save(cmd.Context(), snap); err != nil {
					return fmt.Errorf("failed to save snapshot to %s: %w", s.Name(), err)
				}
			}
			common.LogInfo("GHG snapshot refreshed", zap.Int("ingredients", table.Len()), zap.Int("stores", len(stores)))
			return nil
		},
	}
}
