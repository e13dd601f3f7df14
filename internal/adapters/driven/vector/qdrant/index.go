// Package qdrant provides a vector index backed by a Qdrant collection.
//
// Every upsert writes the document's new chunk points under a fresh
// generation number, then flips the document's active generation with a
// single-point write to a companion "<collection>_generations" collection.
// Searches only match points of active generations, so readers see either
// the old or the new chunk set. Superseded generations are deleted once
// every search started before the flip has returned.
//
// The active generation map is cached in process and loaded once at start,
// so a collection must have a single writing process.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/vector"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Payload keys.
const (
	fieldDocName    = "doc_name"
	fieldGeneration = "generation"
	fieldChunkID    = "chunk_id"
	fieldPosition   = "position"
	fieldPageFrom   = "page_from"
	fieldPageTo     = "page_to"
	fieldContent    = "content"
)

const (
	generationsSuffix = "_generations"
	upsertBatchSize   = 256
	scrollPageSize    = 256
)

// pointNamespace scopes name-based point ids.
var pointNamespace = uuid.MustParse("0b6c2d6e-8f7a-5d43-a1c9-4e2f6b8d0c57")

// Config configures the Qdrant connection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
}

// Index is a driven.VectorIndex over two Qdrant collections.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	apiKey      string
	chunks      string
	generations string

	mu       sync.RWMutex
	active   map[string]int64 // doc name -> active generation
	dim      int
	ready    bool
	lastGen  int64
	genClock func() int64

	// readers counts searches running against the current active map.
	readers *sync.WaitGroup
}

// New connects to Qdrant and loads the active generations.
func New(ctx context.Context, cfg Config) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant connect: %v", domain.ErrIndexUnavailable, err)
	}

	idx := newIndex(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg)
	idx.conn = conn
	if err := idx.load(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return idx, nil
}

func newIndex(points pb.PointsClient, collections pb.CollectionsClient, cfg Config) *Index {
	return &Index{
		points:      points,
		collections: collections,
		apiKey:      cfg.APIKey,
		chunks:      cfg.Collection,
		generations: cfg.Collection + generationsSuffix,
		active:      make(map[string]int64),
		genClock:    func() int64 { return time.Now().UnixNano() },
		readers:     new(sync.WaitGroup),
	}
}

// Upsert writes entries under a new generation and makes it active.
func (i *Index) Upsert(ctx context.Context, docName string, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return i.Delete(ctx, docName)
	}
	ctx = i.withAuth(ctx)
	if err := i.ensureCollections(ctx, entries); err != nil {
		return err
	}

	gen := i.nextGeneration()
	points := make([]*pb.PointStruct, len(entries))
	for n, e := range entries {
		points[n] = chunkPoint(docName, gen, e)
	}
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		if _, err := i.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: i.chunks,
			Wait:           pb.PtrOf(true),
			Points:         points[start:end],
		}); err != nil {
			i.discard(docName, gen)
			return unavailable("upsert chunks", err)
		}
	}

	// The flip: a single point write makes the new generation visible.
	if _, err := i.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: i.generations,
		Wait:           pb.PtrOf(true),
		Points:         []*pb.PointStruct{generationPoint(docName, gen)},
	}); err != nil {
		i.discard(docName, gen)
		return unavailable("activate generation", err)
	}

	i.mu.Lock()
	i.active[docName] = gen
	readers := i.retireReaders()
	i.mu.Unlock()

	// Searches that captured the old generation must finish before its points go.
	readers.Wait()

	// Superseded points are invisible already; failing to drop them only costs space.
	if _, err := i.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: i.chunks,
		Points: pb.NewPointsSelectorFilter(&pb.Filter{
			Must:    []*pb.Condition{pb.NewMatchKeyword(fieldDocName, docName)},
			MustNot: []*pb.Condition{pb.NewMatchInt(fieldGeneration, gen)},
		}),
	}); err != nil {
		logger.Warn("qdrant: failed to drop old generations of %s: %v", docName, err)
	}
	return nil
}

// Search returns at most k hits from active generations.
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	i.mu.RLock()
	if len(i.active) == 0 || k <= 0 {
		i.mu.RUnlock()
		return nil, nil
	}
	if i.dim != 0 && len(query) != i.dim {
		i.mu.RUnlock()
		return nil, fmt.Errorf("%w: query has %d dimensions, index uses %d",
			domain.ErrInvalidInput, len(query), i.dim)
	}
	filter := activeFilter(i.active)
	readers := i.readers
	readers.Add(1)
	i.mu.RUnlock()
	defer readers.Done()

	// Over-fetch so equal scores at the cut can be reordered by insertion.
	resp, err := i.points.Search(i.withAuth(ctx), &pb.SearchPoints{
		CollectionName: i.chunks,
		Vector:         query,
		Filter:         filter,
		Limit:          uint64(k * 2),
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return nil, unavailable("search", err)
	}

	cands := make([]vector.Candidate, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		cands = append(cands, candidateFromPayload(pt.GetPayload(), float64(pt.GetScore())))
	}
	return vector.TopK(cands, k), nil
}

// Delete deactivates docName, then removes its points.
func (i *Index) Delete(ctx context.Context, docName string) error {
	ctx = i.withAuth(ctx)

	i.mu.RLock()
	ready := i.ready
	i.mu.RUnlock()
	if !ready {
		return nil
	}

	if _, err := i.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: i.generations,
		Wait:           pb.PtrOf(true),
		Points:         pb.NewPointsSelector(generationID(docName)),
	}); err != nil {
		return unavailable("deactivate document", err)
	}

	i.mu.Lock()
	delete(i.active, docName)
	readers := i.retireReaders()
	i.mu.Unlock()
	readers.Wait()

	if _, err := i.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: i.chunks,
		Points: pb.NewPointsSelectorFilter(&pb.Filter{
			Must: []*pb.Condition{pb.NewMatchKeyword(fieldDocName, docName)},
		}),
	}); err != nil {
		logger.Warn("qdrant: failed to drop points of %s: %v", docName, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (i *Index) Close() error {
	if i.conn == nil {
		return nil
	}
	return i.conn.Close()
}

// load reads active generations and the chunk dimension, if the collections exist.
func (i *Index) load(ctx context.Context) error {
	ctx = i.withAuth(ctx)

	exists, err := i.collectionExists(ctx, i.chunks)
	if err != nil || !exists {
		return err
	}
	info, err := i.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: i.chunks})
	if err != nil {
		return unavailable("collection info", err)
	}
	dim := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())

	active := make(map[string]int64)
	genExists, err := i.collectionExists(ctx, i.generations)
	if err != nil {
		return err
	}
	if genExists {
		var offset *pb.PointId
		for {
			resp, err := i.points.Scroll(ctx, &pb.ScrollPoints{
				CollectionName: i.generations,
				Offset:         offset,
				Limit:          pb.PtrOf(uint32(scrollPageSize)),
				WithPayload:    pb.NewWithPayload(true),
			})
			if err != nil {
				return unavailable("load generations", err)
			}
			for _, pt := range resp.GetResult() {
				payload := pt.GetPayload()
				active[payload[fieldDocName].GetStringValue()] = payload[fieldGeneration].GetIntegerValue()
			}
			offset = resp.GetNextPageOffset()
			if offset == nil {
				break
			}
		}
	}

	i.mu.Lock()
	i.active = active
	i.dim = dim
	i.ready = genExists
	i.mu.Unlock()
	logger.Debug("qdrant: loaded %d active documents from %s", len(active), i.chunks)
	return nil
}

// ensureCollections creates both collections on first use and checks dimensions.
func (i *Index) ensureCollections(ctx context.Context, entries []domain.IndexEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	dim, ok := vector.CheckDimensions(entries, i.dim)
	if !ok {
		return fmt.Errorf("%w: embedding dimension mismatch (index uses %d)", domain.ErrInvalidInput, i.dim)
	}
	if i.ready {
		return nil
	}

	for name, size := range map[string]int{i.chunks: dim, i.generations: 1} {
		exists, err := i.collectionExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := i.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
				Size:     uint64(size),
				Distance: pb.Distance_Cosine,
			}),
		}); err != nil && status.Code(err) != codes.AlreadyExists {
			return unavailable("create collection "+name, err)
		}
	}

	if _, err := i.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: i.chunks,
		FieldName:      fieldDocName,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	}); err != nil {
		logger.Warn("qdrant: doc_name payload index not created: %v", err)
	}

	i.dim = dim
	i.ready = true
	return nil
}

func (i *Index) collectionExists(ctx context.Context, name string) (bool, error) {
	resp, err := i.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, unavailable("collection exists", err)
	}
	return resp.GetResult().GetExists(), nil
}

// discard removes the points of a generation that never became active.
func (i *Index) discard(docName string, gen int64) {
	ctx, cancel := context.WithTimeout(i.withAuth(context.Background()), 10*time.Second)
	defer cancel()
	if _, err := i.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: i.chunks,
		Points: pb.NewPointsSelectorFilter(&pb.Filter{
			Must: []*pb.Condition{
				pb.NewMatchKeyword(fieldDocName, docName),
				pb.NewMatchInt(fieldGeneration, gen),
			},
		}),
	}); err != nil {
		logger.Warn("qdrant: failed to discard generation %d of %s: %v", gen, docName, err)
	}
}

// retireReaders starts a new reader epoch and returns the previous one.
// Callers hold i.mu for writing.
func (i *Index) retireReaders() *sync.WaitGroup {
	old := i.readers
	i.readers = new(sync.WaitGroup)
	return old
}

func (i *Index) nextGeneration() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	gen := i.genClock()
	if gen <= i.lastGen {
		gen = i.lastGen + 1
	}
	i.lastGen = gen
	return gen
}

func (i *Index) withAuth(ctx context.Context) context.Context {
	if i.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", i.apiKey)
}

// activeFilter matches points whose generation is active for their document.
func activeFilter(active map[string]int64) *pb.Filter {
	should := make([]*pb.Condition, 0, len(active))
	for doc, gen := range active {
		should = append(should, pb.NewFilterAsCondition(&pb.Filter{
			Must: []*pb.Condition{
				pb.NewMatchKeyword(fieldDocName, doc),
				pb.NewMatchInt(fieldGeneration, gen),
			},
		}))
	}
	return &pb.Filter{Should: should}
}

func chunkPoint(docName string, gen int64, e domain.IndexEntry) *pb.PointStruct {
	c := e.Chunk
	return &pb.PointStruct{
		Id:      pb.NewID(pointID(c.ID, gen)),
		Vectors: pb.NewVectorsDense(e.Embedding),
		Payload: map[string]*pb.Value{
			fieldDocName:    pb.NewValueString(docName),
			fieldGeneration: pb.NewValueInt(gen),
			fieldChunkID:    pb.NewValueString(c.ID),
			fieldPosition:   pb.NewValueInt(int64(c.Position)),
			fieldPageFrom:   pb.NewValueInt(int64(c.PageFrom)),
			fieldPageTo:     pb.NewValueInt(int64(c.PageTo)),
			fieldContent:    pb.NewValueString(c.Content),
		},
	}
}

func generationPoint(docName string, gen int64) *pb.PointStruct {
	return &pb.PointStruct{
		Id:      generationID(docName),
		Vectors: pb.NewVectors(1),
		Payload: map[string]*pb.Value{
			fieldDocName:    pb.NewValueString(docName),
			fieldGeneration: pb.NewValueInt(gen),
		},
	}
}

func candidateFromPayload(payload map[string]*pb.Value, score float64) vector.Candidate {
	return vector.Candidate{
		Hit: domain.VectorHit{
			Chunk: domain.Chunk{
				ID:       payload[fieldChunkID].GetStringValue(),
				DocName:  payload[fieldDocName].GetStringValue(),
				Position: int(payload[fieldPosition].GetIntegerValue()),
				Content:  payload[fieldContent].GetStringValue(),
				PageFrom: int(payload[fieldPageFrom].GetIntegerValue()),
				PageTo:   int(payload[fieldPageTo].GetIntegerValue()),
			},
			Similarity: score,
		},
		Seq: payload[fieldGeneration].GetIntegerValue(),
	}
}

// pointID derives a stable point id for a chunk within a generation.
func pointID(chunkID string, gen int64) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s/%d", chunkID, gen)).String()
}

func generationID(docName string) *pb.PointId {
	return pb.NewID(uuid.NewSHA1(pointNamespace, []byte("generation/"+docName)).String())
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
		return fmt.Errorf("qdrant %s: %w", op, context.Canceled)
	}
	return fmt.Errorf("%w: qdrant %s: %v", domain.ErrIndexUnavailable, op, err)
}
