package mapper

import "github.com/fulfillsync/mirror/internal/vendorapi"

func mapWarehouse(rec vendorapi.Record) (*Mapped, error) {
	id, ok := rec.Int64("idwarehouse")
	if !ok {
		return nil, &MappingError{Kind: Warehouses, Field: "idwarehouse"}
	}

	parent := Row{
		"idwarehouse":      id,
		"name":             strOrNull(rec, "name"),
		"accept_orders":    bool01(rec, "accept_orders"),
		"unlimited_stock":  bool01(rec, "unlimited_stock"),
		"counting_enabled": bool01(rec, "counting_enabled"),
		"priority":         intOrNull(rec, "priority"),
		"active":           bool01(rec, "active"),
		"created_at":       timeOrNull(rec, "created_at"),
		"updated_at":       timeOrNull(rec, "updated_at"),
	}

	return &Mapped{PK: id, UpdatedAt: rec.UpdatedAt(), Parent: parent}, nil
}
