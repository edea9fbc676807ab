package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField and payloadDocField stash the logical id (Qdrant only
// accepts UUID/int point ids, so string ids get mapped to a deterministic
// UUIDv5) and the original document text, alongside caller metadata.
// Same trick as qdrant_vector.go's PAYLOAD_ID_FIELD in the teacher repo.
const (
	payloadIDField  = "_original_id"
	payloadDocField = "_document"
)

type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore connects to Qdrant and ensures the named collection exists
// with the configured vector size and distance metric.
func NewQdrantStore(ctx context.Context, dsn, collection string, dimensions int, metric string) (Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("vectorstore: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid qdrant port: %w", err)
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create qdrant client: %w", err)
	}

	s := &qdrantStore{client: client, collection: collection, dimension: dimensions}
	if err := s.ensureCollection(ctx, metric); err != nil {
		client.Close()
		return nil, fmt.Errorf("vectorstore: ensure collection %s: %w", collection, err)
	}
	return s, nil
}

func (s *qdrantStore) ensureCollection(ctx context.Context, metric string) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("dimensions must be > 0")
	}

	var distance qdrant.Distance
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}

	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: distance,
		}),
	})
}

// pointUUID maps a logical id to the UUID Qdrant requires as a point id.
// Ids that already parse as UUIDs pass through unchanged.
func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (s *qdrantStore) Upsert(ctx context.Context, id string, vector []float32, document string, metadata map[string]string) error {
	uuidStr := pointUUID(id)

	payload := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		payload[k] = v
	}
	if uuidStr != id {
		payload[payloadIDField] = id
	}
	if document != "" {
		payload[payloadDocField] = document
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (s *qdrantStore) Get(ctx context.Context, ids []string) ([]Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(pointUUID(id)))
	}
	recs, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(recs))
	for _, rec := range recs {
		out = append(out, pointFromRecord(rec.GetId(), rec.GetPayload(), rec.GetVectors()))
	}
	return out, nil
}

func (s *qdrantStore) GetWhere(ctx context.Context, filter map[string]string, limit int) ([]Point, error) {
	if limit <= 0 {
		limit = 100
	}
	qf := filterFromMap(filter)
	limitU := uint32(limit)
	resp, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         qf,
		Limit:          &limitU,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(resp))
	for _, rec := range resp {
		out = append(out, pointFromRecord(rec.GetId(), rec.GetPayload(), rec.GetVectors()))
	}
	return out, nil
}

func (s *qdrantStore) Update(ctx context.Context, id string, metadata map[string]string) error {
	uuidStr := pointUUID(id)
	payload := make(map[string]any, len(metadata))
	for k, v := range metadata {
		payload[k] = v
	}
	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.collection,
		Payload:        qdrant.NewValueMap(payload),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDUUID(uuidStr)),
	})
	return err
}

func (s *qdrantStore) Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Neighbor, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(k)

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         filterFromMap(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Neighbor, 0, len(hits))
	for _, hit := range hits {
		id, document, metadata := splitPayload(hit.Id, hit.Payload)
		out = append(out, Neighbor{
			ID:       id,
			Score:    float64(hit.Score),
			Document: document,
			Metadata: metadata,
		})
	}
	return out, nil
}

func (s *qdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func filterFromMap(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: must}
}

// splitPayload separates the stashed logical id and document text from the
// rest of the payload, which becomes the caller-visible metadata.
// Never trust the payload map's presence alone; always check the returned
// string lengths before treating a field as populated.
func splitPayload(pointID *qdrant.PointId, payload map[string]*qdrant.Value) (id, document string, metadata map[string]string) {
	uuidStr := pointID.GetUuid()
	if uuidStr == "" {
		uuidStr = pointID.String()
	}
	metadata = make(map[string]string)
	var originalID string
	for k, v := range payload {
		switch k {
		case payloadIDField:
			originalID = v.GetStringValue()
		case payloadDocField:
			document = v.GetStringValue()
		default:
			metadata[k] = v.GetStringValue()
		}
	}
	id = originalID
	if id == "" {
		id = uuidStr
	}
	return id, document, metadata
}

func pointFromRecord(pointID *qdrant.PointId, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) Point {
	id, document, metadata := splitPayload(pointID, payload)
	var vec []float32
	if vectors != nil {
		if dense := vectors.GetVector(); dense != nil {
			vec = dense.GetData()
		}
	}
	return Point{ID: id, Vector: vec, Document: document, Metadata: metadata}
}
