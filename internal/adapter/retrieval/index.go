package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"quiz-forge/internal/config"
	"quiz-forge/internal/domain"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	mmrLambda       = 0.5
	minFetchK       = 20
	embedBatchSize  = 32
	maxParallelLoad = 4
	metadataSource  = "source"
)

type chunk struct {
	text   string
	source string
	vec    []float32
}

// Status describes the loaded document set.
type Status struct {
	Loaded   bool      `json:"loaded"`
	Files    []string  `json:"files"`
	Chunks   int       `json:"chunks"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

// Index is an in-memory vector index over the files of the document library. It is the
// reference domain.ContextProvider. Load always rebuilds the whole index and swaps it in once
// the new one is complete, so queries never see a half-built index.
type Index struct {
	mu       sync.RWMutex
	chunks   []chunk
	files    []string
	loadedAt time.Time

	libraryDir string
	splitter   textsplitter.TextSplitter
	embedder   domain.EmbeddingService
	logger     *zap.Logger
}

// NewIndex creates an empty index over cfg.LibraryDir.
func NewIndex(cfg config.RetrievalConfig, embedder domain.EmbeddingService, logger *zap.Logger) *Index {
	chunkSize, overlap := cfg.ChunkSize, cfg.ChunkOverlap
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 8
	}
	return &Index{
		libraryDir: cfg.LibraryDir,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(overlap),
		),
		embedder: embedder,
		logger:   logger,
	}
}

// Load rebuilds the index from filenames, which are names inside the library directory. An
// empty list clears the index.
func (ix *Index) Load(ctx context.Context, filenames []string) (Status, error) {
	if len(filenames) == 0 {
		ix.swap(nil, nil)
		ix.logger.Info("Document index cleared")
		return ix.Status(), nil
	}

	for _, name := range filenames {
		if name == "" || filepath.Base(name) != name {
			return Status{}, domain.NewInvalidInputError(fmt.Sprintf("invalid file name: %q", name))
		}
		if !supportedFile(name) {
			return Status{}, domain.NewInvalidInputError(fmt.Sprintf("unsupported file type: %q", name))
		}
	}

	perFile := make([][]schema.Document, len(filenames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoad)
	for i, name := range filenames {
		i, name := i, name
		g.Go(func() error {
			docs, err := loadFile(gctx, filepath.Join(ix.libraryDir, name))
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", name, err)
			}
			for j := range docs {
				if docs[j].Metadata == nil {
					docs[j].Metadata = map[string]any{}
				}
				docs[j].Metadata[metadataSource] = name
			}
			split, err := textsplitter.SplitDocuments(ix.splitter, docs)
			if err != nil {
				return fmt.Errorf("failed to split %s: %w", name, err)
			}
			perFile[i] = split
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Status{}, err
	}

	var chunks []chunk
	for _, docs := range perFile {
		for _, doc := range docs {
			text := strings.TrimSpace(doc.PageContent)
			if text == "" {
				continue
			}
			source, _ := doc.Metadata[metadataSource].(string)
			chunks = append(chunks, chunk{text: text, source: source})
		}
	}
	if len(chunks) == 0 {
		return Status{}, domain.NewInvalidInputError("selected files contain no extractable text")
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.text)
		}
		vectors, err := ix.embedder.GenerateBatch(ctx, texts)
		if err != nil {
			return Status{}, fmt.Errorf("failed to embed chunks: %w", err)
		}
		for i, vec := range vectors {
			chunks[start+i].vec = vec
		}
	}

	files := append([]string(nil), filenames...)
	sort.Strings(files)
	ix.swap(chunks, files)
	ix.logger.Info("Document index rebuilt", zap.Strings("files", files), zap.Int("chunks", len(chunks)))
	return ix.Status(), nil
}

// Retrieve returns up to k fragments for query. With diverse set, candidates are re-ranked by
// maximal marginal relevance to reduce near-duplicates.
func (ix *Index) Retrieve(ctx context.Context, query string, k int, diverse bool) ([]domain.ContextFragment, error) {
	ix.mu.RLock()
	chunks := ix.chunks
	ix.mu.RUnlock()

	if len(chunks) == 0 {
		return nil, domain.NewRetrievalUnavailableError("No documents are loaded. Load a document set before generating.")
	}
	if k <= 0 {
		return []domain.ContextFragment{}, nil
	}

	queryVec, err := ix.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ranked := rankBySimilarity(chunks, queryVec)
	var picked []scoredChunk
	if diverse {
		fetchK := min(max(4*k, minFetchK), len(ranked))
		picked = mmrSelect(ranked[:fetchK], k, mmrLambda)
	} else {
		picked = ranked[:min(k, len(ranked))]
	}

	fragments := make([]domain.ContextFragment, 0, len(picked))
	for _, p := range picked {
		fragments = append(fragments, domain.ContextFragment{
			Text:   p.chunk.text,
			Source: p.chunk.source,
			Score:  p.score,
		})
	}
	return fragments, nil
}

// Status reports the currently loaded file set.
func (ix *Index) Status() Status {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Status{
		Loaded:   len(ix.chunks) > 0,
		Files:    append([]string{}, ix.files...),
		Chunks:   len(ix.chunks),
		LoadedAt: ix.loadedAt,
	}
}

// LibraryFiles lists the loadable files in the library directory.
func (ix *Index) LibraryFiles() ([]string, error) {
	entries, err := os.ReadDir(ix.libraryDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read library directory: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && supportedFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

func (ix *Index) swap(chunks []chunk, files []string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chunks = chunks
	ix.files = files
	if len(chunks) > 0 {
		ix.loadedAt = time.Now()
	} else {
		ix.loadedAt = time.Time{}
	}
}

var _ domain.ContextProvider = (*Index)(nil)
