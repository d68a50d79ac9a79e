package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/providers"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
	"github.com/cdx-ehr/billreview/internal/infrastructure/observability"
	"github.com/rs/zerolog/log"
)

// CachedReferenceAdapter wraps a ReferenceRepository with caching.
// Reference data changes rarely, so category and rate lookups are safe
// to cache with short TTLs. Any cache failure falls through to the
// underlying adapter. Metrics may be nil; hit/miss counting is then
// disabled.
type CachedReferenceAdapter struct {
	adapter repositories.ReferenceRepository
	cache   providers.CacheProvider
	metrics *observability.Metrics
}

// NewCachedReferenceAdapter creates a new cached reference adapter
func NewCachedReferenceAdapter(adapter repositories.ReferenceRepository, cache providers.CacheProvider, metrics *observability.Metrics) repositories.ReferenceRepository {
	return &CachedReferenceAdapter{
		adapter: adapter,
		cache:   cache,
		metrics: metrics,
	}
}

// Cache TTLs (in seconds)
const (
	cptCategoryTTL = 3600 // 1 hour, dim_proc is near-static
	rateTTL        = 600  // 10 minutes for rate rows
)

func categoryCacheKey(cptCodes []string) string {
	sorted := make([]string, len(cptCodes))
	copy(sorted, cptCodes)
	sort.Strings(sorted)
	return fmt.Sprintf("ref:categories:%s", strings.Join(sorted, ","))
}

func rateCacheKey(table, key1, key2 string, modifier *string) string {
	mod := ""
	if modifier != nil {
		mod = *modifier
	}
	return fmt.Sprintf("ref:%s:%s:%s:%s", table, key1, key2, mod)
}

// cachedRate distinguishes "no rate row" from "not cached"
type cachedRate struct {
	Rate  *float64 `json:"rate"`
	Found bool     `json:"found"`
}

// CategoriesFor retrieves CPT categories with caching
func (a *CachedReferenceAdapter) CategoriesFor(ctx context.Context, cptCodes []string) (map[string]entities.CPTCategory, error) {
	cacheKey := categoryCacheKey(cptCodes)

	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var categories map[string]entities.CPTCategory
		if err := json.Unmarshal(cached, &categories); err == nil {
			observability.RecordCacheHit(ctx, a.metrics, "ref:categories")
			return categories, nil
		}
		log.Warn().Err(err).Str("key", cacheKey).Msg("failed to unmarshal cached categories")
	}
	observability.RecordCacheMiss(ctx, a.metrics, "ref:categories")

	started := time.Now()
	categories, err := a.adapter.CategoriesFor(ctx, cptCodes)
	if err != nil {
		return nil, err
	}
	observability.RecordDBMetric(ctx, a.metrics, "reference.categories_for", time.Since(started))

	// Fill the cache off the request path
	go func() {
		bgCtx := context.Background()
		if data, err := json.Marshal(categories); err == nil {
			if err := a.cache.Set(bgCtx, cacheKey, data, cptCategoryTTL); err != nil {
				log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache categories")
			}
		}
	}()

	return categories, nil
}

// InNetworkRate retrieves an in-network rate with caching
func (a *CachedReferenceAdapter) InNetworkRate(ctx context.Context, tin, cptCode string, modifier *string) (*float64, error) {
	cacheKey := rateCacheKey("ppo", entities.CleanTIN(tin), cptCode, modifier)

	if rate, ok := a.cachedRateFor(ctx, cacheKey); ok {
		observability.RecordCacheHit(ctx, a.metrics, "ref:ppo")
		return rate, nil
	}
	observability.RecordCacheMiss(ctx, a.metrics, "ref:ppo")

	started := time.Now()
	rate, err := a.adapter.InNetworkRate(ctx, tin, cptCode, modifier)
	if err != nil {
		return nil, err
	}
	observability.RecordDBMetric(ctx, a.metrics, "reference.in_network_rate", time.Since(started))

	a.fillRate(cacheKey, rate)
	return rate, nil
}

// OutOfNetworkRate retrieves an out-of-network rate with caching
func (a *CachedReferenceAdapter) OutOfNetworkRate(ctx context.Context, orderID, cptCode string, modifier *string) (*float64, error) {
	cacheKey := rateCacheKey("ota", orderID, cptCode, modifier)

	if rate, ok := a.cachedRateFor(ctx, cacheKey); ok {
		observability.RecordCacheHit(ctx, a.metrics, "ref:ota")
		return rate, nil
	}
	observability.RecordCacheMiss(ctx, a.metrics, "ref:ota")

	started := time.Now()
	rate, err := a.adapter.OutOfNetworkRate(ctx, orderID, cptCode, modifier)
	if err != nil {
		return nil, err
	}
	observability.RecordDBMetric(ctx, a.metrics, "reference.out_of_network_rate", time.Since(started))

	a.fillRate(cacheKey, rate)
	return rate, nil
}

func (a *CachedReferenceAdapter) cachedRateFor(ctx context.Context, cacheKey string) (*float64, bool) {
	cached, err := a.cache.Get(ctx, cacheKey)
	if err != nil {
		return nil, false
	}

	var entry cachedRate
	if err := json.Unmarshal(cached, &entry); err != nil {
		log.Warn().Err(err).Str("key", cacheKey).Msg("failed to unmarshal cached rate")
		return nil, false
	}
	if !entry.Found {
		return nil, false
	}

	return entry.Rate, true
}

func (a *CachedReferenceAdapter) fillRate(cacheKey string, rate *float64) {
	go func() {
		bgCtx := context.Background()
		entry := cachedRate{Rate: rate, Found: true}
		if data, err := json.Marshal(entry); err == nil {
			if err := a.cache.Set(bgCtx, cacheKey, data, rateTTL); err != nil {
				log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache rate")
			}
		}
	}()
}
