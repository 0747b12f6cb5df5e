// Command repomap demonstrates generate_map end to end against a repository
// checkout. It is a thin CLI, not part of the core contract (SPEC_FULL.md §1).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repomapper/repomap/internal/config"
	"github.com/repomapper/repomap/internal/repomap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		tokens  int
		refresh string
		special bool
	)

	cmd := &cobra.Command{
		Use:   "repomap <path>",
		Short: "Render a ranked repository symbol map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]

			repomap.InitTiktokenLoader(repomap.TiktokenCacheDir())
			counter, err := repomap.NewTiktokenCounter("cl100k_base")
			if err != nil {
				return fmt.Errorf("load tokenizer: %w", err)
			}

			cfg := config.DefaultRepoMapOptions()
			cfg.MaxTokens = tokens
			cfg.SpecialFiles = special

			builder, err := repomap.NewBuilder(root, &cfg, counter)
			if err != nil {
				return fmt.Errorf("create builder: %w", err)
			}
			defer builder.Close()

			files, err := repomap.WalkRepoFiles(cmd.Context(), root, cfg.ExcludeGlobs)
			if err != nil {
				return fmt.Errorf("walk repository: %w", err)
			}

			out, err := builder.GenerateMap(cmd.Context(), repomap.Request{
				OtherFiles: files,
				Refresh:    repomap.RefreshMode(refresh),
				MapTokens:  tokens,
			})
			if err != nil {
				return fmt.Errorf("generate map: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().IntVar(&tokens, "tokens", 0, "rendered token budget (0 = dynamic default)")
	cmd.Flags().StringVar(&refresh, "refresh", string(repomap.RefreshAuto), "tag cache refresh mode: auto, files, manual, always")
	cmd.Flags().BoolVar(&special, "special-files", false, "include a stage-0 prelude of README/LICENSE/CI-config files")

	return cmd
}
