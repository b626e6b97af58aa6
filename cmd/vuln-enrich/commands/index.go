package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

// IndexBuildAction は脆弱性レコードからインデックスを構築して保存するアクション
func IndexBuildAction(ctx context.Context, cmd *cli.Command) error {
	input := cmd.String("input")
	query := cmd.String("query")
	topK := cmd.Int("top-k")

	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}
	indexDir := resolveIndexDir(cmd.String("index-dir"), appCtx.Config)

	appCtx.Logger().Info("building vulnerability index",
		slog.String("input", input),
		slog.String("index_dir", indexDir))

	records, err := appCtx.Container.Loader.LoadPath(input)
	if err != nil {
		return fmt.Errorf("failed to load input records: %w", err)
	}

	stats, err := appCtx.Container.IndexService.Build(ctx, records)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	if err := appCtx.Container.IndexService.Save(indexDir); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}

	appCtx.Logger().Info("index build completed",
		slog.Int("total", stats.Total),
		slog.Int("indexed", stats.Indexed),
		slog.Int("dropped", stats.Dropped),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("nlist", stats.Nlist),
		slog.Int("nprobe", stats.Nprobe))

	// 動作確認クエリ（省略可）
	if query != "" {
		return runQuery(ctx, appCtx, query, topK)
	}
	return nil
}

// IndexQueryAction は保存済みインデックスに対して類似検索を実行するアクション
func IndexQueryAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	topK := cmd.Int("top-k")

	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}
	indexDir := resolveIndexDir(cmd.String("index-dir"), appCtx.Config)

	if err := appCtx.Container.IndexService.Load(indexDir); err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	return runQuery(ctx, appCtx, query, topK)
}

// runQuery は類似検索を実行し、結果をJSONで標準出力に書き出す
func runQuery(ctx context.Context, appCtx *AppContext, query string, topK int) error {
	results, err := appCtx.Container.IndexService.Query(ctx, []string{query}, topK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results[0]); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}
