package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/vuln-enrich/internal/core/enrich"
)

// EnrichRunAction は脆弱性レコードを CVSS スコアと対策テキストで強化するアクション
func EnrichRunAction(ctx context.Context, cmd *cli.Command) error {
	input := cmd.String("input")

	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}
	indexDir := resolveIndexDir(cmd.String("index-dir"), appCtx.Config)

	output := cmd.String("output")
	if output == "" {
		output = appCtx.Config.Enrich.OutputPath
	}

	// インデックスが読み込めなくても縮退して続行する。
	// 類似検索は番兵ヒットを返し、メトリクスはドメイン既定値に解決される。
	if err := appCtx.Container.IndexService.Load(indexDir); err != nil {
		appCtx.Logger().Warn("failed to load index, continuing without similarity matching",
			slog.String("index_dir", indexDir),
			slog.String("error", err.Error()))
	}

	records, err := appCtx.Container.Loader.LoadPath(input)
	if err != nil {
		return fmt.Errorf("failed to load input records: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no valid records found in %s", input)
	}

	result, err := appCtx.Container.EnrichService.Run(ctx, records)
	if err != nil {
		return fmt.Errorf("enrichment run failed: %w", err)
	}

	if err := enrich.WriteOutput(output, result); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	appCtx.Logger().Info("enrichment completed",
		slog.String("run_id", result.RunID.String()),
		slog.String("output", output),
		slog.Int("enriched", len(result.Enriched)),
		slog.Int("skipped", result.Skipped))
	return nil
}
