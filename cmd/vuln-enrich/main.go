package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/vuln-enrich/cmd/vuln-enrich/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定（コマンド側で設定読み込み後に再構成される）
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "vuln-enrich",
		Usage: "脆弱性レコードの類似検索インデックス構築と CVSS/対策テキストによる強化",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "ベクトルインデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "build",
						Usage: "脆弱性レコードからインデックスを構築して保存",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "input",
								Usage:    "入力JSONファイルまたはディレクトリ",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "index-dir",
								Usage: "インデックス出力ディレクトリ（省略時は環境変数またはデフォルト）",
							},
							&cli.StringFlag{
								Name:  "query",
								Usage: "構築後に実行する動作確認クエリ（省略可）",
							},
							&cli.IntFlag{
								Name:  "top-k",
								Usage: "動作確認クエリの取得件数",
								Value: 3,
							},
						},
						Action: commands.IndexBuildAction,
					},
					{
						Name:  "query",
						Usage: "保存済みインデックスに対して類似検索を実行",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:  "index-dir",
								Usage: "インデックスディレクトリ（省略時は環境変数またはデフォルト）",
							},
							&cli.StringFlag{
								Name:     "query",
								Usage:    "検索クエリ文字列",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "top-k",
								Usage: "取得件数",
								Value: 5,
							},
						},
						Action: commands.IndexQueryAction,
					},
				},
			},
			{
				Name:  "enrich",
				Usage: "強化パイプライン管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "脆弱性レコードを CVSS スコアと対策テキストで強化",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "input",
								Usage:    "入力JSONファイルまたはディレクトリ",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "index-dir",
								Usage: "インデックスディレクトリ（省略時は環境変数またはデフォルト）",
							},
							&cli.StringFlag{
								Name:  "output",
								Usage: "出力JSONファイルパス（省略時は環境変数またはデフォルト）",
							},
						},
						Action: commands.EnrichRunAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
