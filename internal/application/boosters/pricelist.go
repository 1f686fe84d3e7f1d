package boosters

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"montro-backend/internal/domain"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// BoosterInfo is the point-in-time price-list entry the engine bills from.
type BoosterInfo struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

// PriceList looks up the current booster catalog. The catalog is owned by an
// external admin surface and may change at any time; lookups are
// point-in-time and historical charges are never repriced.
type PriceList interface {
	// Lookup returns the entry for code; found is false for absent codes
	// (orphaned boosters), which billing treats as price 0.
	Lookup(ctx context.Context, code string) (info BoosterInfo, found bool, err error)
	// Catalog returns all current entries.
	Catalog(ctx context.Context) ([]BoosterInfo, error)
}

// DBPriceList reads the catalog straight from the Boosters table.
type DBPriceList struct {
	DB *gorm.DB
}

func (p *DBPriceList) Lookup(ctx context.Context, code string) (BoosterInfo, bool, error) {
	var b domain.Booster
	err := p.DB.WithContext(ctx).Where("code = ?", code).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return BoosterInfo{}, false, nil
	}
	if err != nil {
		return BoosterInfo{}, false, err
	}
	return BoosterInfo{Code: b.Code, Name: b.Name, Price: b.Price, Description: b.Description}, true, nil
}

func (p *DBPriceList) Catalog(ctx context.Context) ([]BoosterInfo, error) {
	var all []domain.Booster
	if err := p.DB.WithContext(ctx).Order("price ASC").Find(&all).Error; err != nil {
		return nil, err
	}
	out := make([]BoosterInfo, 0, len(all))
	for _, b := range all {
		out = append(out, BoosterInfo{Code: b.Code, Name: b.Name, Price: b.Price, Description: b.Description})
	}
	return out, nil
}

const (
	priceListCachePrefix = "boosters:price:"
	priceListCacheTTL    = time.Minute
)

// CachedPriceList wraps another PriceList with a Redis TTL cache. A stale
// window is acceptable: a booster price change does not need to propagate
// instantly, and listings keep the effect of boosters that disappear from the
// catalog.
type CachedPriceList struct {
	Inner PriceList
	Rdb   *redis.Client
}

type cachedEntry struct {
	Info  BoosterInfo `json:"info"`
	Found bool        `json:"found"`
}

func (p *CachedPriceList) Lookup(ctx context.Context, code string) (BoosterInfo, bool, error) {
	key := priceListCachePrefix + code
	if b, err := p.Rdb.Get(ctx, key).Bytes(); err == nil {
		var e cachedEntry
		if json.Unmarshal(b, &e) == nil {
			return e.Info, e.Found, nil
		}
	}

	info, found, err := p.Inner.Lookup(ctx, code)
	if err != nil {
		return BoosterInfo{}, false, err
	}
	if b, err := json.Marshal(cachedEntry{Info: info, Found: found}); err == nil {
		p.Rdb.Set(ctx, key, b, priceListCacheTTL)
	}
	return info, found, nil
}

func (p *CachedPriceList) Catalog(ctx context.Context) ([]BoosterInfo, error) {
	return p.Inner.Catalog(ctx)
}
