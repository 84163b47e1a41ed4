// verify.go — публичная проверка целостности по хешу.
// Положительные результаты кэшируются в LRU с TTL
// (hashicorp/golang-lru/v2/expirable).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guregu/null/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/blockevidence/internal/repository"
)

// Prometheus-метрики кэша верификации.
var (
	verifyCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "be_verify_cache_hits_total",
		Help: "Общее количество попаданий в кэш верификации.",
	})
	verifyCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "be_verify_cache_misses_total",
		Help: "Общее количество промахов кэша верификации.",
	})
)

// notVerifiedMessage — ответ для неизвестного хеша.
const notVerifiedMessage = "No evidence found matching this hash."

// VerifiedCollector — публичные сведения о собравшем улику.
type VerifiedCollector struct {
	FullName    string      `json:"fullName"`
	BadgeNumber null.String `json:"badgeNumber"`
	Department  null.String `json:"department"`
}

// VerifiedFile — публичные сведения о файле улики.
type VerifiedFile struct {
	FileName   string    `json:"fileName"`
	SHA256Hash string    `json:"sha256Hash"`
	UploadedAt time.Time `json:"uploadedAt"`
	FileSize   int64     `json:"fileSize"`
}

// VerifiedEvidence — сокращённая проекция улики без чувствительных данных.
type VerifiedEvidence struct {
	ID             string            `json:"id"`
	CaseID         null.String       `json:"caseId"`
	Type           string            `json:"type"`
	Description    string            `json:"description"`
	CollectionDate time.Time         `json:"collectionDate"`
	Location       string            `json:"location"`
	Status         string            `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	CollectedBy    VerifiedCollector `json:"collectedBy"`
	Files          []VerifiedFile    `json:"files"`
}

// VerifyService — проверка хеша улики или файла.
type VerifyService struct {
	store  *Store
	cache  *expirable.LRU[string, *VerifiedEvidence]
	logger *slog.Logger
}

// NewVerifyService создаёт сервис верификации с кэшем на maxSize записей.
func NewVerifyService(store *Store, maxSize int, ttl time.Duration, logger *slog.Logger) *VerifyService {
	return &VerifyService{
		store:  store,
		cache:  expirable.NewLRU[string, *VerifiedEvidence](maxSize, nil, ttl),
		logger: logger.With(slog.String("component", "verify_service")),
	}
}

// Verify ищет улику по хешу целостности или хешу любого её файла.
func (s *VerifyService) Verify(ctx context.Context, hash string) (*VerifiedEvidence, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, notFoundError(notVerifiedMessage)
	}

	if v, ok := s.cache.Get(hash); ok {
		verifyCacheHitsTotal.Inc()
		return v, nil
	}
	verifyCacheMissesTotal.Inc()

	repos := s.store.Repos()
	e, err := repos.Evidence.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(notVerifiedMessage)
		}
		return nil, fmt.Errorf("поиск улики по хешу: %w", err)
	}

	collector, err := repos.Users.GetByID(ctx, e.CollectedByID)
	if err != nil {
		return nil, fmt.Errorf("получение собравшего улику: %w", err)
	}
	files, err := repos.Files.ListByEvidence(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("файлы улики: %w", err)
	}

	v := &VerifiedEvidence{
		ID:             e.ID,
		CaseID:         e.CaseID,
		Type:           e.Type,
		Description:    e.Description,
		CollectionDate: e.CollectionDate,
		Location:       e.Location,
		Status:         e.Status,
		CreatedAt:      e.CreatedAt,
		CollectedBy: VerifiedCollector{
			FullName:    collector.FullName,
			BadgeNumber: collector.BadgeNumber,
			Department:  collector.Department,
		},
		Files: make([]VerifiedFile, 0, len(files)),
	}
	for _, f := range files {
		v.Files = append(v.Files, VerifiedFile{
			FileName:   f.FileName,
			SHA256Hash: f.SHA256Hash,
			UploadedAt: f.UploadedAt,
			FileSize:   f.FileSize,
		})
	}

	s.cache.Add(hash, v)
	return v, nil
}

// InvalidateEvidence удаляет из кэша все результаты по улике.
func (s *VerifyService) InvalidateEvidence(evidenceID string) {
	for _, key := range s.cache.Keys() {
		if v, ok := s.cache.Peek(key); ok && v.ID == evidenceID {
			s.cache.Remove(key)
		}
	}
}
