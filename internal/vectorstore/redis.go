package vectorstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	fieldName        = "name"
	fieldDescription = "description"
	fieldEmbedding   = "embedding"
	fieldScore       = "score"

	// Search fetches tieSlack extra neighbours and trims after ranking.
	tieSlack = 16
)

// RedisIndex names the RediSearch index and key prefix backing one collection.
type RedisIndex struct {
	Name   string
	Prefix string
}

// Redis is a Store on RediSearch FLAT vector indexes with the IP metric.
// The client must speak RESP2 for FT.SEARCH replies to be parsed.
type Redis struct {
	client  *redis.Client
	dims    int
	indexes map[string]RedisIndex
}

// NewRedis maps collections to indexes. Dims is the embedding size.
func NewRedis(client *redis.Client, dims int, indexes map[string]RedisIndex) *Redis {
	return &Redis{client: client, dims: dims, indexes: indexes}
}

// EnsureIndexes creates every missing index.
func (r *Redis) EnsureIndexes(ctx context.Context) error {
	existing, err := r.client.FT_List(ctx).Result()
	if err != nil {
		return fmt.Errorf("vectorstore: list indexes: %w", err)
	}
	for collection, idx := range r.indexes {
		if slices.Contains(existing, idx.Name) {
			continue
		}
		err := r.client.FTCreate(ctx, idx.Name,
			&redis.FTCreateOptions{OnHash: true, Prefix: []interface{}{idx.Prefix}},
			&redis.FieldSchema{FieldName: fieldName, FieldType: redis.SearchFieldTypeTag},
			&redis.FieldSchema{FieldName: fieldDescription, FieldType: redis.SearchFieldTypeText},
			&redis.FieldSchema{
				FieldName: fieldEmbedding,
				FieldType: redis.SearchFieldTypeVector,
				VectorArgs: &redis.FTVectorArgs{
					FlatOptions: &redis.FTFlatOptions{Type: "FLOAT32", Dim: r.dims, DistanceMetric: "IP"},
				},
			},
		).Err()
		if err != nil {
			return fmt.Errorf("vectorstore: create index %s for %s: %w", idx.Name, collection, err)
		}
	}
	return nil
}

func (r *Redis) index(collection string) (RedisIndex, error) {
	idx, ok := r.indexes[collection]
	if !ok {
		return RedisIndex{}, fmt.Errorf("vectorstore: unknown collection %q", collection)
	}
	return idx, nil
}

func (r *Redis) Upsert(ctx context.Context, collection string, docs []Document) error {
	idx, err := r.index(collection)
	if err != nil {
		return err
	}
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, d := range docs {
			if len(d.Vector) != r.dims {
				return fmt.Errorf("vectorstore: %s has %d dims, index expects %d", d.ID, len(d.Vector), r.dims)
			}
			p.HSet(ctx, idx.Prefix+d.ID,
				fieldName, d.Name,
				fieldDescription, d.Description,
				fieldEmbedding, encodeVector(d.Vector),
			)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert into %s: %w", idx.Name, err)
	}
	return nil
}

func (r *Redis) Search(ctx context.Context, collection string, vector []float64, topK int) ([]Match, error) {
	idx, err := r.index(collection)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 1
	}

	k := knnCandidates(topK)
	query := fmt.Sprintf("*=>[KNN %d @%s $vec AS %s]", k, fieldEmbedding, fieldScore)
	res, err := r.client.FTSearchWithArgs(ctx, idx.Name, query, &redis.FTSearchOptions{
		Params:         map[string]interface{}{"vec": encodeVector(vector)},
		DialectVersion: 2,
		Return: []redis.FTSearchReturn{
			{FieldName: fieldName}, {FieldName: fieldDescription}, {FieldName: fieldScore},
		},
		SortBy: []redis.FTSearchSortBy{{FieldName: fieldScore, Asc: true}},
		Limit:  k,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search %s: %w", idx.Name, err)
	}

	matches := make([]Match, 0, len(res.Docs))
	for _, doc := range res.Docs {
		distance, err := strconv.ParseFloat(doc.Fields[fieldScore], 64)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: bad score for %s: %w", doc.ID, err)
		}
		matches = append(matches, Match{
			ID:          strings.TrimPrefix(doc.ID, idx.Prefix),
			Name:        doc.Fields[fieldName],
			Description: doc.Fields[fieldDescription],
			Similarity:  similarityFromIPDistance(distance),
		})
	}
	return rank(matches, topK), nil
}

func knnCandidates(topK int) int { return topK + tieSlack }

// RediSearch reports IP distance as 1 - inner product.
func similarityFromIPDistance(d float64) float64 { return 1 - d }

func encodeVector(v []float64) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(x)))
	}
	return buf
}
