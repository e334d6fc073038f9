package agent

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"marketbot/internal/domain"
)

// Category codes understood by the marketplace service.
const CategoryVegetable = "VEGETABLE"

var (
	quantityToken = regexp.MustCompile(`^(\d+)(斤|公斤)$`)
	priceToken    = regexp.MustCompile(`^(\d+)(元|块)$`)

	knownTitles = []string{"菠菜", "白菜", "萝卜"}
)

// ExtractProductInfo pulls listing fields out of free text. Quantity and
// price are only recognized as whitespace-separated tokens such as "100斤"
// or "3元"; when several match, the last one wins.
func ExtractProductInfo(msg string) domain.ProductInfo {
	var info domain.ProductInfo
	for _, tok := range strings.Fields(msg) {
		if m := quantityToken.FindStringSubmatch(tok); m != nil {
			info.Quantity = decimal.NewNullDecimal(decimal.RequireFromString(m[1]))
			info.QuantityUnit = m[2]
		}
		if m := priceToken.FindStringSubmatch(tok); m != nil {
			info.PriceMin = decimal.NewNullDecimal(decimal.RequireFromString(m[1]))
		}
	}

	for _, title := range knownTitles {
		if strings.Contains(msg, title) {
			info.Title = title
			break
		}
	}
	// "菜" covers "蔬菜" too.
	if strings.Contains(msg, "菜") {
		info.Category = CategoryVegetable
	}
	return info
}

// MissingFields names, in the user's language, what a listing still needs.
func MissingFields(info domain.ProductInfo) []string {
	var missing []string
	if info.Title == "" {
		missing = append(missing, "商品名称")
	}
	if !info.Quantity.Valid {
		missing = append(missing, "数量")
	}
	if info.Category == "" {
		missing = append(missing, "品类")
	}
	return missing
}

// searchQuery derives listing filters from the message. 需求 overrides 供应
// when both appear.
func searchQuery(msg string) domain.SearchQuery {
	q := domain.SearchQuery{PageSize: searchPageSize}
	if strings.Contains(msg, "蔬菜") {
		q.Category = CategoryVegetable
	}
	if strings.Contains(msg, "供应") {
		q.ListingType = domain.ListingSupply
	}
	if strings.Contains(msg, "需求") {
		q.ListingType = domain.ListingDemand
	}
	return q
}
