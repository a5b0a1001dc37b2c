package aggregate

import (
	"strconv"
	"strings"

	"zarigaas/internal/domain/entity"
)

// SearchProducts matches term against name, category and the formatted
// price, case-insensitively. An empty term keeps everything.
func SearchProducts(products []entity.Product, term string) []entity.Product {
	term = strings.ToLower(strings.TrimSpace(term))
	out := []entity.Product{}
	for _, p := range products {
		if term == "" || productMatches(p, term) {
			out = append(out, p)
		}
	}
	return out
}

func productMatches(p entity.Product, term string) bool {
	if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.Category), term) {
		return true
	}
	if p.Price != nil {
		return strings.Contains(strconv.FormatFloat(*p.Price, 'f', -1, 64), term)
	}
	return false
}

// InStockOnly keeps products with stock left.
func InStockOnly(products []entity.Product) []entity.Product {
	out := []entity.Product{}
	for _, p := range products {
		if p.Availability() == entity.InStock {
			out = append(out, p)
		}
	}
	return out
}
