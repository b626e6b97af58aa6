package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/jinford/vuln-enrich/internal/core/vuln"
)

// 永続化アーティファクトのファイル名
const (
	indexFileName    = "vuln_index.gob"
	metadataFileName = "vuln_metadata.json"
	manifestFileName = "manifest.json"

	// nprobeCap は検索時に走査するパーティション数の上限。
	// 速度と再現率のトレードオフ。
	nprobeCap = 10
)

var (
	// ErrNoRecords は有効な入力レコードが1件もない場合のエラー
	ErrNoRecords = errors.New("no valid records to index")

	// ErrIndexNotReady は構築/読み込み前にクエリされた場合のエラー
	ErrIndexNotReady = errors.New("index not built or loaded")

	// ErrProviderMismatch は埋め込みプロバイダー構成がマニフェストと一致しない場合のエラー
	ErrProviderMismatch = errors.New("embedding provider does not match index manifest")

	// ErrDimensionMismatch は埋め込み次元がインデックスと一致しない場合のエラー
	ErrDimensionMismatch = errors.New("embedding dimension does not match index")
)

// Embedder はテキスト埋め込みプロバイダーのインターフェース。
// 次元は初期化時に固定され、構築時とクエリ時で一致しなければならない。
type Embedder interface {
	// EmbedBatch は複数テキストの正規化済み埋め込みベクトルを生成する
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension は埋め込みベクトルの次元数を返す
	Dimension() int

	// ModelName は埋め込みモデル名を返す
	ModelName() string
}

// Service はANNインデックスの構築・永続化・読み込み・検索を提供する。
// 構築とクエリは排他的なライフサイクルフェーズであり、並行更新はない。
type Service struct {
	embedder Embedder
	logger   *slog.Logger

	index    *ivfFlat
	metadata []MetadataEntry
	idToPos  map[string]int
	nprobe   int
	ready    bool
}

type serviceOptions struct {
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithServiceLogger はロガーを差し替える
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(embedder Embedder, opts ...ServiceOption) *Service {
	options := serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		embedder: embedder,
		logger:   options.logger,
	}
}

// Ready はインデックスがクエリ可能かを返す
func (s *Service) Ready() bool {
	return s.ready
}

// Count はインデックス済みのベクトル数を返す
func (s *Service) Count() int {
	if !s.ready {
		return 0
	}
	return s.index.count()
}

// Position は外部IDのインデックス位置を返す。重複IDは最後の出現が勝つ。
func (s *Service) Position(id string) (int, bool) {
	pos, ok := s.idToPos[id]
	return pos, ok
}

// computeNlist はパーティション数を決める: max(1, min(round(sqrt(N)), N))。
// 小規模・大規模どちらのコーパスでも退化しない分割を保証する。
func computeNlist(n int) int {
	nlist := int(math.Round(math.Sqrt(float64(n))))
	if nlist > n {
		nlist = n
	}
	if nlist < 1 {
		nlist = 1
	}
	return nlist
}

// Build は脆弱性レコードからインデックスを構築する。
// description が空のレコードは診断ログを出して除外する。
// 有効なレコードが1件もない場合は ErrNoRecords を返し、何も永続化しない。
func (s *Service) Build(ctx context.Context, records []vuln.Record) (*BuildStats, error) {
	stats := &BuildStats{Total: len(records)}

	texts := make([]string, 0, len(records))
	metadata := make([]MetadataEntry, 0, len(records))
	for i, record := range records {
		if !record.HasDescription() {
			s.logger.Warn("dropping record with missing/empty description",
				slog.Int("position", i),
				slog.String("id", record.ID))
			stats.Dropped++
			continue
		}

		entry := MetadataEntry{
			ID:          record.ID,
			Title:       record.Title,
			Synopsis:    record.Synopsis,
			Description: record.Description,
			Solution:    record.Solution,
			Impact:      record.Impact,
			Metrics:     record.Metrics.Clone(),
		}
		if entry.ID == "" {
			// 外部IDがない場合は位置ベースのIDを振る
			entry.ID = fmt.Sprintf("vuln_%d", len(metadata))
		}
		texts = append(texts, record.EmbeddingText())
		metadata = append(metadata, entry)
	}

	if len(texts) == 0 {
		return nil, ErrNoRecords
	}

	s.logger.Info("generating embeddings",
		slog.Int("count", len(texts)),
		slog.String("model", s.embedder.ModelName()))

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed records: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(texts))
	}
	for _, emb := range embeddings {
		if len(emb) != s.embedder.Dimension() {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), s.embedder.Dimension())
		}
	}

	nlist := computeNlist(len(embeddings))
	nprobe := nlist
	if nprobe > nprobeCap {
		nprobe = nprobeCap
	}

	s.logger.Info("building IVF index",
		slog.Int("embeddings", len(embeddings)),
		slog.Int("nlist", nlist),
		slog.Int("nprobe", nprobe))

	ix := newIVFFlat(s.embedder.Dimension(), nlist)
	if err := ix.train(embeddings); err != nil {
		return nil, fmt.Errorf("failed to train quantizer: %w", err)
	}
	if err := ix.add(embeddings); err != nil {
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}

	// ID→位置マップ。重複IDは後勝ちで警告を出す。
	idToPos := make(map[string]int, len(metadata))
	for pos, entry := range metadata {
		if _, exists := idToPos[entry.ID]; exists {
			s.logger.Warn("duplicate record id, keeping last entry",
				slog.String("id", entry.ID),
				slog.Int("position", pos))
			stats.Duplicates++
		}
		idToPos[entry.ID] = pos
	}

	s.index = ix
	s.metadata = metadata
	s.idToPos = idToPos
	s.nprobe = nprobe
	s.ready = true

	stats.Indexed = len(metadata)
	stats.Nlist = nlist
	stats.Nprobe = nprobe
	return stats, nil
}

// Save はインデックス・メタデータ・プロバイダーマニフェストをディレクトリに永続化する
func (s *Service) Save(dir string) error {
	if !s.ready {
		return ErrIndexNotReady
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	indexFile, err := os.Create(filepath.Join(dir, indexFileName))
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer indexFile.Close()

	if err := s.index.encode(indexFile); err != nil {
		return err
	}

	metadataBytes, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFileName), metadataBytes, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	manifest := Manifest{
		EmbeddingModel: s.embedder.ModelName(),
		Dimension:      s.embedder.Dimension(),
		Count:          s.index.count(),
		Nlist:          s.index.Nlist,
		Nprobe:         s.nprobe,
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName), manifestBytes, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	s.logger.Info("saved index artifacts",
		slog.String("dir", dir),
		slog.Int("count", s.index.count()))
	return nil
}

// Load は永続化済みのインデックスを読み込み、読み取り専用のクエリフェーズに入る。
// 現在の埋め込みプロバイダー構成がマニフェストと一致しない場合は
// ErrProviderMismatch を返す。
func (s *Service) Load(dir string) error {
	manifestBytes, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}

	if manifest.EmbeddingModel != s.embedder.ModelName() || manifest.Dimension != s.embedder.Dimension() {
		return fmt.Errorf("%w: manifest has model=%s dim=%d, provider has model=%s dim=%d",
			ErrProviderMismatch,
			manifest.EmbeddingModel, manifest.Dimension,
			s.embedder.ModelName(), s.embedder.Dimension())
	}

	indexFile, err := os.Open(filepath.Join(dir, indexFileName))
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer indexFile.Close()

	ix, err := decodeIVFFlat(indexFile)
	if err != nil {
		return err
	}

	metadataBytes, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	var metadata []MetadataEntry
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}

	idToPos := make(map[string]int, len(metadata))
	for pos, entry := range metadata {
		idToPos[entry.ID] = pos
	}

	s.index = ix
	s.metadata = metadata
	s.idToPos = idToPos
	s.nprobe = manifest.Nprobe
	s.ready = true

	s.logger.Info("loaded index artifacts",
		slog.String("dir", dir),
		slog.Int("count", ix.count()),
		slog.String("model", manifest.EmbeddingModel))
	return nil
}

// Query はクエリ文字列のバッチを埋め込み、クエリごとに距離昇順で
// 最大k件のヒットを返す。構築/読み込み前、または埋め込みが（リトライ
// 上限到達後も）失敗した場合は、クエリごとに番兵エントリ1件を返して
// 処理を続行する。
func (s *Service) Query(ctx context.Context, texts []string, k int) ([][]Hit, error) {
	if !s.ready {
		s.logger.Error("query before index build/load, returning sentinel results")
		return sentinelResults(texts), nil
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.logger.Error("query embedding failed, returning sentinel results",
			slog.String("error", err.Error()))
		return sentinelResults(texts), nil
	}

	results := make([][]Hit, 0, len(texts))
	for i, emb := range embeddings {
		// 次元の一致は信頼せず明示的に検証する
		if len(emb) != s.index.Dim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), s.index.Dim)
		}

		candidates := s.index.search(emb, k, s.nprobe)
		hits := make([]Hit, 0, len(candidates))
		for _, c := range candidates {
			if c.position < 0 || c.position >= len(s.metadata) {
				continue
			}
			hits = append(hits, Hit{
				MetadataEntry: s.metadata[c.position],
				Distance:      c.distance,
			})
		}

		if len(hits) == 0 {
			s.logger.Warn("no match found", slog.String("query", truncate(texts[i], 50)))
		}
		results = append(results, hits)
	}

	return results, nil
}

func sentinelResults(texts []string) [][]Hit {
	results := make([][]Hit, len(texts))
	for i, text := range texts {
		results[i] = []Hit{sentinelHit(text)}
	}
	return results
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
