package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"cbt-exam-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches the questionnaire from a backing store (e.g., SQL).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// CatalogRepository caches the catalog with a TTL to avoid repeated DB hits.
// Questions are immutable after seeding, so a stale entry is still correct.
type CatalogRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	catalog   domain.Catalog
	expiresAt time.Time
	loaded    bool
}

func NewCatalogRepository(loader QuestionLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetCatalog(ctx context.Context) (domain.Catalog, error) {
	if catalog, ok := r.cached(r.clock()); ok {
		return catalog, nil
	}

	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		now := r.clock()
		if catalog, ok := r.cached(now); ok {
			return catalog, nil
		}

		questions, err := r.loader.LoadQuestions(ctx)
		if err != nil {
			return domain.Catalog{}, err
		}
		catalog := NewCatalog(questions)

		r.mu.Lock()
		r.catalog = catalog
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.loaded = true
		r.mu.Unlock()
		return catalog, nil
	})
	if err != nil {
		return domain.Catalog{}, err
	}
	return result.(domain.Catalog), nil
}

func (r *CatalogRepository) cached(now time.Time) (domain.Catalog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.loaded && r.expiresAt.After(now) {
		return r.catalog, true
	}
	return domain.Catalog{}, false
}

// NewCatalog orders questions by id.
func NewCatalog(questions []domain.Question) domain.Catalog {
	sorted := append([]domain.Question(nil), questions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return domain.Catalog{Questions: sorted}
}

// StaticQuestionLoader is a simple loader backed by a slice (useful for tests/demos).
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	return append([]domain.Question(nil), l.questions...), nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
