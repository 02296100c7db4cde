package enums

import "fmt"

// ProductSource names where a sellable product is backed.
// Catalog products live only in the local store; the other kinds mirror a
// record owned by the remote farm system and carry its foreign id.
type ProductSource string

const (
	ProductSourceCatalog   ProductSource = "catalog"
	ProductSourceInventory ProductSource = "inventory"
	ProductSourceService   ProductSource = "service"
	ProductSourceLivestock ProductSource = "livestock"
)

var validProductSources = []ProductSource{
	ProductSourceCatalog,
	ProductSourceInventory,
	ProductSourceService,
	ProductSourceLivestock,
}

// String implements fmt.Stringer.
func (p ProductSource) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductSource.
func (p ProductSource) IsValid() bool {
	for _, candidate := range validProductSources {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProductSource converts raw input into a ProductSource.
func ParseProductSource(value string) (ProductSource, error) {
	for _, candidate := range validProductSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product source %q", value)
}
