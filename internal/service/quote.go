package service

import (
	"context"
	"log/slog"

	"tripflow/internal/cache"
	"tripflow/internal/domain"
)

// QuoteService prices a prospective trip from the base fare and the current
// surge multiplier. It reads only the surge cache, never the window store
// directly.
type QuoteService struct {
	surge  *cache.SurgeCache
	logger *slog.Logger
}

// NewQuoteService creates a new QuoteService.
func NewQuoteService(surge *cache.SurgeCache, logger *slog.Logger) *QuoteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteService{surge: surge, logger: logger}
}

// Quote is the result of pricing a zone/product pair.
type Quote struct {
	Zone        string  `json:"zone"`
	Product     string  `json:"product"`
	BaseFare    float64 `json:"base_fare"`
	Multiplier  float64 `json:"multiplier"`
	SurgeActive bool    `json:"surge_active"`
	Estimate    float64 `json:"estimate"`
}

// GetQuote prices the given zone and product. A surge lookup failure quotes
// at the base fare rather than failing the request.
func (s *QuoteService) GetQuote(ctx context.Context, zone string, product domain.ProductCategory) (*Quote, error) {
	if !domain.ValidProduct(product) {
		return nil, ErrInvalidProduct
	}

	base := baseFareFor(product)

	multiplier := 1.0
	active := false
	if s.surge != nil {
		m, err := s.surge.Multiplier(ctx, zone, product)
		if err != nil {
			s.logger.Warn("surge lookup failed, quoting base fare",
				"zone", zone, "product", product, "error", err)
		} else {
			multiplier = m.Value
			active = m.Active
		}
	}

	return &Quote{
		Zone:        zone,
		Product:     string(product),
		BaseFare:    base,
		Multiplier:  multiplier,
		SurgeActive: active,
		Estimate:    base * multiplier,
	}, nil
}
