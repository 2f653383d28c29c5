package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"strconv"
	"time"

	"cbt-exam-service/internal/domain"
	"cbt-exam-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogRepository caches the question catalog in Redis so every server process
// grades against the same answer key without hitting SQL on each attempt.
// Questions are stored as: HSET exam:catalog {questionID} {question JSON}
type CatalogRepository struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const catalogKey = "exam:catalog"

func (r *CatalogRepository) GetCatalog(ctx context.Context) (domain.Catalog, error) {
	if catalog, ok := r.cached(ctx); ok {
		return catalog, nil
	}

	result, err, _ := r.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if catalog, ok := r.cached(ctx); ok {
			return catalog, nil
		}

		questions, err := r.loader.LoadQuestions(ctx)
		if err != nil {
			return domain.Catalog{}, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, catalogKey)
		for _, q := range questions {
			raw, err := json.Marshal(q)
			if err != nil {
				return domain.Catalog{}, err
			}
			pipe.HSet(ctx, catalogKey, strconv.FormatInt(q.ID, 10), raw)
		}
		if ttl > 0 {
			pipe.Expire(ctx, catalogKey, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("catalog cache fill failed: %v", err)
		}

		return memory.NewCatalog(questions), nil
	})
	if err != nil {
		return domain.Catalog{}, err
	}
	return result.(domain.Catalog), nil
}

// cached treats any Redis or decode error as a miss; SQL stays the source of truth.
func (r *CatalogRepository) cached(ctx context.Context) (domain.Catalog, bool) {
	entries, err := r.client.HGetAll(ctx, catalogKey).Result()
	if err != nil || len(entries) == 0 {
		return domain.Catalog{}, false
	}
	questions := make([]domain.Question, 0, len(entries))
	for _, raw := range entries {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return domain.Catalog{}, false
		}
		questions = append(questions, q)
	}
	return memory.NewCatalog(questions), true
}

// Invalidate drops the cached catalog, e.g. after reseeding.
func (r *CatalogRepository) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, catalogKey).Err()
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
