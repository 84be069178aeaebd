// Package models defines the record shapes that flow through the sync
// pipeline and the record kinds the orchestrator iterates over.
package models

// RawRecord is an arbitrarily nested record as returned by the source API
// for a single order or shipment. Raw records are owned by the fetcher and
// are never mutated in place; transformation always produces a new record.
type RawRecord = map[string]any

// FlatRecord is a single-level mapping from field name to scalar value
// (string, number, or nil), representing one sink-bound row.
type FlatRecord = map[string]any

// RecordKind identifies one of the synced record streams.
type RecordKind string

const (
	// KindCreatedOrders are orders created on the target date.
	KindCreatedOrders RecordKind = "created_orders"
	// KindOrderItems are line items expanded from created orders.
	KindOrderItems RecordKind = "order_items"
	// KindModifiedOrders are orders modified within the trailing window.
	KindModifiedOrders RecordKind = "modified_orders"
	// KindShipments are shipments created on the target date.
	KindShipments RecordKind = "shipments"
)
