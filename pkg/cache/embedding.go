package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EmbeddingCache специализированный кэш для результатов решателя.
// Решатель детерминирован для одинаковых входов и seed, поэтому повтор
// запроса можно безопасно отдавать из кэша.
type EmbeddingCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedEmbedding кэшированный результат решения
type CachedEmbedding struct {
	ObjectiveValue   float64   `json:"objective_value"`
	Infeasible       bool      `json:"infeasible"`
	ChangedInstances int       `json:"changed_instances"`
	InitTimeMs       float64   `json:"init_time_ms"`
	RuntimeMs        float64   `json:"runtime_ms"`
	Result           []byte    `json:"result"` // сериализованный результат для writer
	ComputedAt       time.Time `json:"computed_at"`
}

// NewEmbeddingCache создаёт кэш результатов поверх выбранного backend
func NewEmbeddingCache(cache Cache, defaultTTL time.Duration) *EmbeddingCache {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &EmbeddingCache{
		cache:      cache,
		defaultTTL: defaultTTL,
	}
}

// BuildKey строит ключ кэша из хеша сценария и варианта целевой функции
func BuildKey(scenarioHash, objective string) string {
	return fmt.Sprintf("embed:%s:%s", objective, scenarioHash)
}

// Get получает кэшированный результат
func (ec *EmbeddingCache) Get(ctx context.Context, scenarioHash, objective string) (*CachedEmbedding, bool, error) {
	key := BuildKey(scenarioHash, objective)

	data, err := ec.cache.Get(ctx, key)
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var result CachedEmbedding
	if err := json.Unmarshal(data, &result); err != nil {
		// Повреждённый кэш — удаляем, ошибку удаления игнорируем намеренно
		_ = ec.cache.Delete(ctx, key) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}

	return &result, true, nil
}

// Set сохраняет результат в кэш
func (ec *EmbeddingCache) Set(ctx context.Context, scenarioHash, objective string, result *CachedEmbedding, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ec.defaultTTL
	}
	key := BuildKey(scenarioHash, objective)

	result.ComputedAt = time.Now()

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return ec.cache.Set(ctx, key, data, ttl)
}
