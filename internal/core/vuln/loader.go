package vuln

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var (
	// ErrNotArray は入力JSONのルートが配列でない場合のエラー
	ErrNotArray = errors.New("expected JSON array at document root")
)

// Loader はJSONファイルから脆弱性レコードを読み込む
type Loader struct {
	logger *slog.Logger
}

type loaderOptions struct {
	logger *slog.Logger
}

// LoaderOption は Loader のオプション設定
type LoaderOption func(*loaderOptions)

// WithLoaderLogger はロガーを差し替える
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(o *loaderOptions) {
		o.logger = logger
	}
}

// NewLoader は新しい Loader を作成する
func NewLoader(opts ...LoaderOption) *Loader {
	options := loaderOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Loader{logger: options.logger}
}

// LoadPath はファイルまたはディレクトリからレコードを読み込む
func (l *Loader) LoadPath(path string) ([]Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input path: %w", err)
	}

	if info.IsDir() {
		return l.LoadDir(path)
	}
	return l.LoadFile(path)
}

// LoadFile は単一のJSONファイルからレコードを読み込む。
// ルートはJSON配列でなければならない。description が空のレコードは
// 警告を出して除外され、バッチ全体の失敗にはならない。
func (l *Loader) LoadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotArray, path)
	}

	records := make([]Record, 0, len(raw))
	skipped := 0
	for i, entry := range raw {
		var record Record
		if err := json.Unmarshal(entry, &record); err != nil {
			l.logger.Warn("skipping malformed entry",
				slog.String("file", path),
				slog.Int("position", i),
				slog.String("error", err.Error()))
			skipped++
			continue
		}
		if !record.HasDescription() {
			l.logger.Warn("skipping entry with missing/empty description",
				slog.String("file", path),
				slog.String("id", record.ID))
			skipped++
			continue
		}
		records = append(records, record)
	}

	l.logger.Info("loaded vulnerability records",
		slog.String("file", path),
		slog.Int("valid", len(records)),
		slog.Int("skipped", skipped))

	return records, nil
}

// LoadDir はディレクトリ内のすべての *.json ファイルからレコードを読み込む。
// 個々のファイルの失敗はログに記録してスキップし、残りの処理を続行する。
func (l *Loader) LoadDir(dir string) ([]Record, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var records []Record
	for _, path := range paths {
		fileRecords, err := l.LoadFile(path)
		if err != nil {
			l.logger.Error("skipping unreadable input file",
				slog.String("file", path),
				slog.String("error", err.Error()))
			continue
		}
		records = append(records, fileRecords...)
	}

	l.logger.Info("loaded vulnerability records from directory",
		slog.String("dir", dir),
		slog.Int("files", len(paths)),
		slog.Int("records", len(records)))

	return records, nil
}
