package flat

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kirillkom/policy-radar/internal/core/domain"
	"github.com/kirillkom/policy-radar/internal/infrastructure/storage/localfs"
)

const (
	VectorsFile = "vectors.bin"
	ChunksFile  = "chunks.db"
	ConfigFile  = "index.json"

	formatVersion = 2
	vectorsMagic  = "PRVX"
	// magic, version, count, dimension and build id length; the build id
	// bytes follow the fixed header.
	headerSize = 20
)

var (
	chunksBucket = []byte("chunks")
	metaBucket   = []byte("meta")
	buildIDKey   = []byte("build_id")
)

type indexConfig struct {
	FormatVersion int                   `json:"format_version"`
	BuildID       string                `json:"build_id"`
	BuiltAt       time.Time             `json:"built_at"`
	Provider      string                `json:"provider"`
	Dimension     int                   `json:"dimension"`
	ChunkCount    int                   `json:"chunk_count"`
	Concepts      []domain.ConceptGroup `json:"concepts"`
}

// Save writes the live snapshot into path. The directory is replaced only
// after every artifact has been written and synced.
func (s *Store) Save(ctx context.Context, path string) error {
	snap := s.live.Load()
	if snap == nil {
		return domain.WrapError(domain.ErrNotFound, "save index", fmt.Errorf("no index to save"))
	}

	staged, err := localfs.StageDir(path)
	if err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if err := writeArtifacts(ctx, staged, snap); err != nil {
		localfs.Discard(staged)
		return fmt.Errorf("save index: %w", err)
	}
	if err := localfs.Publish(staged, path); err != nil {
		localfs.Discard(staged)
		return fmt.Errorf("save index: %w", err)
	}
	slog.Info("index_saved", "path", path, "chunks", len(snap.chunks), "build_id", snap.buildID)
	return nil
}

func writeArtifacts(ctx context.Context, dir string, snap *snapshot) error {
	if err := localfs.WriteFile(filepath.Join(dir, VectorsFile), func(w io.Writer) error {
		return writeVectors(w, snap.index, snap.buildID)
	}); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeChunks(filepath.Join(dir, ChunksFile), snap.chunks, snap.buildID); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}

	cfg := indexConfig{
		FormatVersion: formatVersion,
		BuildID:       snap.buildID,
		BuiltAt:       snap.builtAt,
		Provider:      snap.provider,
		Dimension:     snap.index.Dimension(),
		ChunkCount:    len(snap.chunks),
		Concepts:      snap.groups,
	}
	return localfs.WriteFile(filepath.Join(dir, ConfigFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	})
}

func writeVectors(w io.Writer, ix *Index, buildID string) error {
	header := make([]byte, headerSize, headerSize+len(buildID))
	copy(header[0:4], vectorsMagic)
	binary.LittleEndian.PutUint32(header[4:8], formatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(ix.Len()))
	binary.LittleEndian.PutUint32(header[12:16], uint32(ix.Dimension()))
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(buildID)))
	header = append(header, buildID...)
	if _, err := w.Write(header); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, ix.data)
}

func writeChunks(path string, chunks []domain.Chunk, buildID string) error {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if err := meta.Put(buildIDKey, []byte(buildID)); err != nil {
			return err
		}
		bucket, err := tx.CreateBucketIfNotExists(chunksBucket)
		if err != nil {
			return err
		}
		for pos, chunk := range chunks {
			raw, err := json.Marshal(chunk)
			if err != nil {
				return fmt.Errorf("marshal chunk %s: %w", chunk.ChunkID, err)
			}
			if err := bucket.Put(positionKey(pos), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func positionKey(pos int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(pos))
	return key
}

// Load reads the snapshot stored in path and makes it live. On error the
// current snapshot stays in place.
func (s *Store) Load(ctx context.Context, path string) error {
	for _, name := range []string{VectorsFile, ChunksFile, ConfigFile} {
		if !localfs.Exists(filepath.Join(path, name)) {
			return domain.WrapError(domain.ErrNotFound, "load index", fmt.Errorf("missing artifact %s in %s", name, path))
		}
	}

	cfg, err := readConfig(filepath.Join(path, ConfigFile))
	if err != nil {
		return domain.WrapError(domain.ErrCorruptIndex, "load index", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	index, vectorsBuild, err := readVectors(filepath.Join(path, VectorsFile))
	if err != nil {
		return domain.WrapError(domain.ErrCorruptIndex, "load index", err)
	}
	if vectorsBuild != cfg.BuildID {
		return domain.WrapError(domain.ErrCorruptIndex, "load index", fmt.Errorf(
			"vectors artifact belongs to build %q, config records %q", vectorsBuild, cfg.BuildID))
	}
	if index.Dimension() != cfg.Dimension || index.Len() != cfg.ChunkCount {
		return domain.WrapError(domain.ErrCorruptIndex, "load index", fmt.Errorf(
			"vectors artifact has %d x %d, config records %d x %d",
			index.Len(), index.Dimension(), cfg.ChunkCount, cfg.Dimension))
	}

	chunks, chunksBuild, err := readChunks(filepath.Join(path, ChunksFile))
	if err != nil {
		return domain.WrapError(domain.ErrCorruptIndex, "load index", err)
	}
	if chunksBuild != cfg.BuildID {
		return domain.WrapError(domain.ErrCorruptIndex, "load index", fmt.Errorf(
			"chunk artifact belongs to build %q, config records %q", chunksBuild, cfg.BuildID))
	}
	if len(chunks) != cfg.ChunkCount {
		return domain.WrapError(domain.ErrCorruptIndex, "load index", fmt.Errorf(
			"chunk artifact has %d records, config records %d", len(chunks), cfg.ChunkCount))
	}

	if s.embedder != nil && s.embedder.Dimension() != cfg.Dimension {
		return domain.WrapError(domain.ErrCorruptIndex, "load index", fmt.Errorf(
			"index dimension %d does not match embedder dimension %d", cfg.Dimension, s.embedder.Dimension()))
	}
	if s.embedder != nil && s.embedder.Identifier() != cfg.Provider {
		slog.Warn("index_provider_mismatch", "index_provider", cfg.Provider, "embedder", s.embedder.Identifier())
	}

	next := &snapshot{
		index:    index,
		chunks:   chunks,
		groups:   cfg.Concepts,
		provider: cfg.Provider,
		buildID:  cfg.BuildID,
		builtAt:  cfg.BuiltAt,
	}
	if err := next.verify(); err != nil {
		return domain.WrapError(domain.ErrCorruptIndex, "load index", err)
	}

	s.writeMu.Lock()
	s.publish(next.seal())
	s.writeMu.Unlock()
	slog.Info("index_loaded", "path", path, "chunks", len(chunks), "build_id", cfg.BuildID)
	return nil
}

func readConfig(path string) (indexConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return indexConfig{}, fmt.Errorf("read config: %w", err)
	}
	var cfg indexConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return indexConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.FormatVersion != formatVersion {
		return indexConfig{}, fmt.Errorf("unsupported index format version %d", cfg.FormatVersion)
	}
	if cfg.Dimension <= 0 || cfg.ChunkCount < 0 {
		return indexConfig{}, fmt.Errorf("invalid config dimension=%d chunk_count=%d", cfg.Dimension, cfg.ChunkCount)
	}
	return cfg, nil
}

func readVectors(path string) (*Index, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open vectors: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("stat vectors: %w", err)
	}
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, "", fmt.Errorf("read vectors header: %w", err)
	}
	if string(header[0:4]) != vectorsMagic {
		return nil, "", errors.New("vectors artifact has unknown magic")
	}
	if version := binary.LittleEndian.Uint32(header[4:8]); version != formatVersion {
		return nil, "", fmt.Errorf("unsupported vectors version %d", version)
	}
	count := int(binary.LittleEndian.Uint32(header[8:12]))
	dim := int(binary.LittleEndian.Uint32(header[12:16]))
	idLen := int64(binary.LittleEndian.Uint32(header[16:20]))
	if want := int64(headerSize) + idLen + int64(count)*int64(dim)*4; info.Size() != want {
		return nil, "", fmt.Errorf("vectors artifact is %d bytes, header implies %d", info.Size(), want)
	}

	buildID := make([]byte, idLen)
	if _, err := io.ReadFull(f, buildID); err != nil {
		return nil, "", fmt.Errorf("read vectors build id: %w", err)
	}

	index := NewIndex(dim)
	index.data = make([]float32, count*dim)
	if err := binary.Read(f, binary.LittleEndian, index.data); err != nil {
		return nil, "", fmt.Errorf("read vectors: %w", err)
	}
	return index, string(buildID), nil
}

func readChunks(path string) ([]domain.Chunk, string, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, "", fmt.Errorf("open chunks: %w", err)
	}
	defer db.Close()

	var (
		chunks  []domain.Chunk
		buildID string
	)
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return errors.New("meta bucket is missing")
		}
		buildID = string(meta.Get(buildIDKey))
		bucket := tx.Bucket(chunksBucket)
		if bucket == nil {
			return errors.New("chunks bucket is missing")
		}
		chunks = make([]domain.Chunk, 0, bucket.Stats().KeyN)
		return bucket.ForEach(func(k, v []byte) error {
			if len(k) != 8 || binary.BigEndian.Uint64(k) != uint64(len(chunks)) {
				return fmt.Errorf("chunk keys are not contiguous at position %d", len(chunks))
			}
			var chunk domain.Chunk
			if err := json.Unmarshal(v, &chunk); err != nil {
				return fmt.Errorf("decode chunk at position %d: %w", len(chunks), err)
			}
			chunks = append(chunks, chunk)
			return nil
		})
	})
	if err != nil {
		return nil, "", err
	}
	return chunks, buildID, nil
}
