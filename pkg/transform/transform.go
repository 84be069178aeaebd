// Package transform flattens nested source records into flat, sink-bound
// rows. All transforms are pure and deterministic: the same raw input always
// yields the same flat output, and raw records are never mutated.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/maxysadm-GH/VHC/pkg/models"
)

// skuFallbackPrefix builds the synthetic item key when the source SKU is
// blank, satisfying the sink's non-null primary key requirement.
const skuFallbackPrefix = "NO_SKU_"

// listSeparator joins list-valued fields into a single delimited string.
const listSeparator = ", "

// Sub-object allow-lists per record kind. Flattening is restricted to these
// known field names so output schemas stay stable.
var (
	orderSubObjects    = []string{"billTo", "shipTo", "weight", "dimensions", "insuranceOptions", "advancedOptions"}
	shipmentSubObjects = []string{"shipTo", "weight", "dimensions", "insuranceOptions", "advancedOptions"}
)

// orderTextFields are free-text order fields sanitized in place.
var orderTextFields = []string{"giftMessage", "internalNotes", "customerNotes"}

// itemFields are the line-item fields carried into an item row as-is.
var itemFields = []string{"lineItemKey", "quantity", "unitPrice", "warehouseLocation", "productId", "fulfillmentSku", "adjustment", "upc"}

// itemWeightPlaceholders keep the item schema stable when the weight
// sub-object is absent: the keys appear with explicit nulls.
var itemWeightPlaceholders = []string{"weight_value", "weight_units", "weight_WeightUnits"}

// Orders flattens order records for the orders dataset. The nested line-item
// collection is dropped here; items are expanded separately by OrderItems.
func Orders(raws []models.RawRecord) []models.FlatRecord {
	records := make([]models.FlatRecord, 0, len(raws))
	for _, raw := range raws {
		rec := make(models.FlatRecord, len(raw)+16)
		for k, v := range raw {
			if k == "items" {
				continue
			}
			rec[k] = v
		}

		for _, field := range orderTextFields {
			if v, ok := rec[field]; ok {
				rec[field] = CleanText(v)
			}
		}

		for _, key := range orderSubObjects {
			hoist(rec, key)
		}

		if tags, ok := rec["tagIds"].([]any); ok {
			rec["tagIds"] = joinList(tags)
		}

		records = append(records, rec)
	}
	return records
}

// OrderItems expands each order into one flat row per line item, carrying
// forward the parent order's identifiers and dates. Orders without items
// contribute no rows.
func OrderItems(raws []models.RawRecord) []models.FlatRecord {
	var records []models.FlatRecord
	for _, raw := range raws {
		items, ok := raw["items"].([]any)
		if !ok || len(items) == 0 {
			continue
		}

		for _, entry := range items {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}

			rec := make(models.FlatRecord, len(item)+8)
			rec["orderId"] = raw["orderId"]
			rec["orderNumber"] = raw["orderNumber"]
			rec["orderDate"] = raw["orderDate"]
			rec["createDate"] = raw["createDate"]

			itemID := item["orderItemId"]
			rec["orderItemId"] = itemID
			rec["sku"] = SKUOrFallback(item["sku"], itemID)
			rec["name"] = CleanText(item["name"])
			for _, field := range itemFields {
				rec[field] = item[field]
			}

			if w, ok := item["weight"]; ok {
				if sub, ok := w.(map[string]any); ok {
					flattenInto(rec, "weight", sub)
				}
			} else {
				for _, key := range itemWeightPlaceholders {
					rec[key] = nil
				}
			}

			records = append(records, rec)
		}
	}
	return records
}

// Shipments flattens shipment records for the shipments dataset.
func Shipments(raws []models.RawRecord) []models.FlatRecord {
	records := make([]models.FlatRecord, 0, len(raws))
	for _, raw := range raws {
		rec := make(models.FlatRecord, len(raw)+16)
		for k, v := range raw {
			rec[k] = v
		}
		for _, key := range shipmentSubObjects {
			hoist(rec, key)
		}
		records = append(records, rec)
	}
	return records
}

// SKUOrFallback returns the trimmed SKU when present, otherwise a synthetic
// unique key derived from the item identifier. Never returns "".
func SKUOrFallback(sku, itemID any) string {
	if s := strings.TrimSpace(stringify(sku)); s != "" {
		return s
	}
	return skuFallbackPrefix + stringify(itemID)
}

// CleanText sanitizes a free-text value: nil becomes "", embedded line
// breaks become spaces, and surrounding whitespace is trimmed.
func CleanText(v any) string {
	if v == nil {
		return ""
	}
	s := stringify(v)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

// hoist removes a sub-object field and merges its children into rec with
// prefixed keys. A missing or non-mapping value is not an error: the key is
// consumed and nothing is hoisted.
func hoist(rec models.FlatRecord, key string) {
	v, ok := rec[key]
	if !ok {
		return
	}
	delete(rec, key)
	if sub, ok := v.(map[string]any); ok {
		flattenInto(rec, key, sub)
	}
}

// flattenInto copies sub's fields into rec under "<prefix>_<child>" keys,
// cleaning string values.
func flattenInto(rec models.FlatRecord, prefix string, sub map[string]any) {
	for k, v := range sub {
		if s, ok := v.(string); ok {
			rec[prefix+"_"+k] = CleanText(s)
		} else {
			rec[prefix+"_"+k] = v
		}
	}
}

// joinList serializes a list-valued field to a delimited string.
func joinList(list []any) string {
	parts := make([]string, 0, len(list))
	for _, v := range list {
		parts = append(parts, stringify(v))
	}
	return strings.Join(parts, listSeparator)
}

// stringify renders a scalar the way the source printed it. JSON numbers
// decode as float64; integral values must not pick up a decimal point or
// exponent when used in keys.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
