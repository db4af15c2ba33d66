package store

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// vectorIndex wraps a coder/hnsw graph keyed by chunk rowid. Deletion
// is lazy: removed keys stay in the graph but are filtered from search
// results. Chunk rowids are never reused (AUTOINCREMENT), so a stale
// graph node can never collide with a live chunk.
type vectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int64]
	dims  int
	live  map[int64]struct{}
}

// vectorMetadata is the gob-persisted sidecar for a saved graph.
type vectorMetadata struct {
	Live map[int64]struct{}
	Dims int
}

type vectorHit struct {
	ChunkID  int64
	Distance float32
}

func newVectorIndex(dims int) (*vectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("vector index requires positive dimensions, got %d", dims)
	}

	graph := hnsw.NewGraph[int64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &vectorIndex{
		graph: graph,
		dims:  dims,
		live:  make(map[int64]struct{}),
	}, nil
}

// add inserts or replaces the vector for a chunk.
func (v *vectorIndex) add(chunkID int64, vec []float32) error {
	if len(vec) != v.dims {
		return ErrDimensionMismatch{Expected: v.dims, Got: len(vec)}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	v.graph.Add(hnsw.MakeNode(chunkID, normalized))
	v.live[chunkID] = struct{}{}
	return nil
}

// search returns up to k live chunk hits ordered by cosine distance.
func (v *vectorIndex) search(query []float32, k int) ([]vectorHit, error) {
	if len(query) != v.dims {
		return nil, ErrDimensionMismatch{Expected: v.dims, Got: len(query)}
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch to compensate for lazily deleted nodes still in the graph.
	fetch := k + (v.graph.Len() - len(v.live))
	nodes := v.graph.Search(normalized, fetch)

	// Graph.Search returns candidates in heap backing-array order, not
	// by distance, so sort before truncating to k.
	hits := make([]vectorHit, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := v.live[node.Key]; !ok {
			continue
		}
		hits = append(hits, vectorHit{
			ChunkID:  node.Key,
			Distance: v.graph.Distance(normalized, node.Value),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// remove drops chunk IDs from the index. Lazy: graph nodes stay behind
// but never surface in results.
func (v *vectorIndex) remove(chunkIDs []int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, id := range chunkIDs {
		delete(v.live, id)
	}
}

func (v *vectorIndex) count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.live)
}

// save exports the graph and its live-set sidecar atomically
// (temp file + rename).
func (v *vectorIndex) save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector index directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector index file: %w", err)
	}
	if err := v.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("export vector graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close vector index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename vector index file: %w", err)
	}

	return v.saveMetadata(path + ".meta")
}

func (v *vectorIndex) saveMetadata(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector metadata file: %w", err)
	}

	meta := vectorMetadata{Live: v.live, Dims: v.dims}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode vector metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close vector metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// load replaces the graph with a previously saved export. The sidecar
// must agree on dimensions.
func (v *vectorIndex) load(path string) error {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open vector metadata: %w", err)
	}
	defer metaFile.Close()

	var meta vectorMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode vector metadata: %w", err)
	}
	if meta.Dims != v.dims {
		return ErrDimensionMismatch{Expected: v.dims, Got: meta.Dims}
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	defer file.Close()

	// bufio.Reader because hnsw Import requires an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import vector graph: %w", err)
	}

	v.mu.Lock()
	v.live = meta.Live
	if v.live == nil {
		v.live = make(map[int64]struct{})
	}
	v.mu.Unlock()
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// encodeVector packs a float32 slice into a little-endian blob for
// SQLite storage.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a blob written by encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
