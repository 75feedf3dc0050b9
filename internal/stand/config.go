package stand

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mir00r/stand-router/internal/domain"
	apperrors "github.com/mir00r/stand-router/internal/errors"
)

// Kind describes a family of stands sharing the same defaults
type Kind struct {
	Name         string  `json:"name" yaml:"name"`
	DefaultPrice float64 `json:"default_price" yaml:"default_price"`
}

// PriceConfig is the full set of operational parameters of a stand
type PriceConfig struct {
	Price float64 `json:"price" yaml:"price"`
}

const paramPrice = "price"

// Defaults returns the config a stand of this kind starts with
func (k Kind) Defaults() PriceConfig {
	return PriceConfig{Price: k.DefaultPrice}
}

// ToBlob returns the config in the wire shape accepted by ApplyConfig
func (c PriceConfig) ToBlob() domain.ConfigBlob {
	return domain.ConfigBlob{paramPrice: c.Price}
}

// ParsePriceConfig builds a complete PriceConfig from blob. Parameters absent
// from blob take the kind's defaults. Unknown parameters, non-numeric values,
// NaN, infinities and negative prices are rejected as a whole.
func ParsePriceConfig(kind Kind, blob domain.ConfigBlob) (PriceConfig, error) {
	cfg := kind.Defaults()

	var unknown []string
	for key := range blob {
		if key != paramPrice {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return PriceConfig{}, apperrors.NewConfigRejectedError(kind.Name,
			fmt.Sprintf("unknown parameters: %s", strings.Join(unknown, ", ")))
	}

	raw, ok := blob[paramPrice]
	if !ok {
		return cfg, nil
	}

	price, err := toFloat(raw)
	if err != nil {
		return PriceConfig{}, apperrors.NewConfigRejectedError(kind.Name, fmt.Sprintf("price: %v", err))
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return PriceConfig{}, apperrors.NewConfigRejectedError(kind.Name, "price must be finite")
	}
	if price < 0 {
		return PriceConfig{}, apperrors.NewConfigRejectedError(kind.Name, "price must not be negative")
	}

	cfg.Price = price
	return cfg, nil
}

// toFloat accepts the numeric shapes produced by encoding/json and yaml.v2
func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
