package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxysadm-GH/VHC/pkg/models"
)

func sampleOrder() models.RawRecord {
	return models.RawRecord{
		"orderId":     float64(1001),
		"orderNumber": "SO-1001",
		"orderDate":   "2026-03-15T08:30:00",
		"createDate":  "2026-03-15T08:30:05",
		"orderStatus": "awaiting_shipment",
		"billTo": map[string]any{
			"name": "Ada Example",
			"city": "Chicago",
		},
		"weight": map[string]any{
			"value": float64(12.5),
			"units": "ounces",
		},
		"internalNotes": "line one\nline two\r\n",
		"tagIds":        []any{float64(3), float64(17)},
		"items": []any{
			map[string]any{
				"orderItemId": float64(42),
				"sku":         "WIDGET-01",
				"name":        "Widget\nDeluxe",
				"quantity":    float64(2),
				"unitPrice":   float64(9.99),
				"weight": map[string]any{
					"value": float64(4),
					"units": "ounces",
				},
			},
			map[string]any{
				"orderItemId": float64(43),
				"sku":         "  ",
				"name":        "Mystery Part",
				"quantity":    float64(1),
			},
		},
	}
}

func TestOrdersFlattensSubObjectsAndDropsItems(t *testing.T) {
	flat := Orders([]models.RawRecord{sampleOrder()})

	require.Len(t, flat, 1)
	rec := flat[0]

	assert.NotContains(t, rec, "items")
	assert.NotContains(t, rec, "billTo")
	assert.NotContains(t, rec, "weight")
	assert.Equal(t, "Ada Example", rec["billTo_name"])
	assert.Equal(t, "Chicago", rec["billTo_city"])
	assert.Equal(t, float64(12.5), rec["weight_value"])
	assert.Equal(t, "ounces", rec["weight_units"])
	assert.Equal(t, float64(1001), rec["orderId"])
}

func TestOrdersCleansTextAndJoinsTags(t *testing.T) {
	flat := Orders([]models.RawRecord{sampleOrder()})

	require.Len(t, flat, 1)
	assert.Equal(t, "line one line two", flat[0]["internalNotes"])
	assert.Equal(t, "3, 17", flat[0]["tagIds"])
}

func TestOrdersDoesNotMutateInput(t *testing.T) {
	raw := sampleOrder()
	_ = Orders([]models.RawRecord{raw})

	assert.Contains(t, raw, "items")
	assert.IsType(t, map[string]any{}, raw["billTo"])
	assert.Equal(t, "line one\nline two\r\n", raw["internalNotes"])
}

func TestOrdersIsDeterministic(t *testing.T) {
	first := Orders([]models.RawRecord{sampleOrder()})
	second := Orders([]models.RawRecord{sampleOrder()})

	assert.Equal(t, first, second)
}

func TestOrderItemsExpandsWithParentFields(t *testing.T) {
	items := OrderItems([]models.RawRecord{sampleOrder()})

	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, float64(1001), first["orderId"])
	assert.Equal(t, "SO-1001", first["orderNumber"])
	assert.Equal(t, "2026-03-15T08:30:00", first["orderDate"])
	assert.Equal(t, "WIDGET-01", first["sku"])
	assert.Equal(t, "Widget Deluxe", first["name"])
	assert.Equal(t, float64(4), first["weight_value"])
	assert.Equal(t, "ounces", first["weight_units"])
}

func TestOrderItemsBlankSKUGetsFallback(t *testing.T) {
	items := OrderItems([]models.RawRecord{sampleOrder()})

	require.Len(t, items, 2)
	assert.Equal(t, "NO_SKU_43", items[1]["sku"])
}

func TestOrderItemsMissingWeightKeepsPlaceholders(t *testing.T) {
	items := OrderItems([]models.RawRecord{sampleOrder()})

	require.Len(t, items, 2)
	second := items[1]
	for _, key := range []string{"weight_value", "weight_units", "weight_WeightUnits"} {
		require.Contains(t, second, key)
		assert.Nil(t, second[key])
	}
}

func TestOrderItemsMissingFieldsAreExplicitNulls(t *testing.T) {
	items := OrderItems([]models.RawRecord{sampleOrder()})

	require.Len(t, items, 2)
	second := items[1]
	require.Contains(t, second, "unitPrice")
	assert.Nil(t, second["unitPrice"])
	require.Contains(t, second, "upc")
	assert.Nil(t, second["upc"])
}

func TestOrderItemsSkipsOrdersWithoutItems(t *testing.T) {
	raws := []models.RawRecord{
		{"orderId": float64(1), "items": []any{}},
		{"orderId": float64(2)},
	}

	assert.Empty(t, OrderItems(raws))
}

func TestShipmentsFlattensKnownSubObjects(t *testing.T) {
	raw := models.RawRecord{
		"shipmentId":     float64(555),
		"trackingNumber": "1Z999",
		"shipTo": map[string]any{
			"name":  "Ada Example",
			"state": "IL",
		},
		"dimensions": map[string]any{
			"length": float64(10),
			"width":  float64(5),
		},
	}

	flat := Shipments([]models.RawRecord{raw})

	require.Len(t, flat, 1)
	rec := flat[0]
	assert.NotContains(t, rec, "shipTo")
	assert.NotContains(t, rec, "dimensions")
	assert.Equal(t, "Ada Example", rec["shipTo_name"])
	assert.Equal(t, float64(10), rec["dimensions_length"])
	assert.Equal(t, "1Z999", rec["trackingNumber"])
}

func TestSKUOrFallback(t *testing.T) {
	assert.Equal(t, "WIDGET-01", SKUOrFallback("WIDGET-01", float64(42)))
	assert.Equal(t, "WIDGET-01", SKUOrFallback("  WIDGET-01  ", float64(42)))
	assert.Equal(t, "NO_SKU_42", SKUOrFallback("", float64(42)))
	assert.Equal(t, "NO_SKU_42", SKUOrFallback("   ", float64(42)))
	assert.Equal(t, "NO_SKU_42", SKUOrFallback(nil, float64(42)))
	assert.Equal(t, "NO_SKU_", SKUOrFallback(nil, nil))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "", CleanText(nil))
	assert.Equal(t, "", CleanText("   "))
	assert.Equal(t, "a b", CleanText("a\nb"))
	assert.Equal(t, "a  b", CleanText("a\r\nb"))
	assert.Equal(t, "gift note", CleanText("  gift note  "))
}

func TestHoistNullSubObjectConsumesKey(t *testing.T) {
	raw := models.RawRecord{
		"orderId": float64(9),
		"billTo":  nil,
	}

	flat := Orders([]models.RawRecord{raw})

	require.Len(t, flat, 1)
	assert.NotContains(t, flat[0], "billTo")
	assert.NotContains(t, flat[0], "billTo_name")
}
