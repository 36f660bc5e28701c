package erp

import "strings"

// ---------------------------------------------------------------------------
// Derived Item Codes
// ---------------------------------------------------------------------------

// ItemPrefixes holds the fixed prefix rules that derive the purchase-side
// and fulfillment-side item codes from a base catalog item.
type ItemPrefixes struct {
	// Purchase prefixes the purchase-order substrate item (e.g. "16P4-")
	Purchase string
	// Fulfillment prefixes the fulfillment finished-good item (e.g. "1600-")
	Fulfillment string
}

// Core strips any known derived prefix and returns the base item code
func (p ItemPrefixes) Core(itemCode string) string {
	s := strings.TrimSpace(itemCode)
	upper := strings.ToUpper(s)
	for _, prefix := range []string{p.Purchase, p.Fulfillment} {
		if prefix != "" && strings.HasPrefix(upper, strings.ToUpper(prefix)) {
			return s[len(prefix):]
		}
	}
	return s
}

// PurchaseItem derives the purchase-side item code from a base code
func (p ItemPrefixes) PurchaseItem(baseItemCode string) string {
	return p.Purchase + p.Core(baseItemCode)
}

// FulfillmentItem derives the fulfillment-side item code from a base code
func (p ItemPrefixes) FulfillmentItem(baseItemCode string) string {
	return p.Fulfillment + p.Core(baseItemCode)
}
