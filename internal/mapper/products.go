package mapper

import "github.com/fulfillsync/mirror/internal/vendorapi"

// mapProduct maps one product record. Flat parent only; stock,
// pricelists, tags, productfields and images have no child tables and
// are carried as JSON text columns.
func mapProduct(rec vendorapi.Record) (*Mapped, error) {
	id, ok := rec.Int64("idproduct")
	if !ok {
		return nil, &MappingError{Kind: Products, Field: "idproduct"}
	}

	parent := Row{
		"idproduct":                 id,
		"idsupplier":                intOrNull(rec, "idsupplier"),
		"idvatgroup":                intOrNull(rec, "idvatgroup"),
		"idfulfilment_customer":     intOrNull(rec, "idfulfilment_customer"),
		"productcode":               strOrNull(rec, "productcode"),
		"productcode_supplier":      strOrNull(rec, "productcode_supplier"),
		"name":                      strOrNull(rec, "name"),
		"description":               strOrNull(rec, "description"),
		"barcode":                   strOrNull(rec, "barcode"),
		"type":                      strOrNull(rec, "type"),
		"price":                     floatOrNull(rec, "price"),
		"fixedstockprice":           floatOrNull(rec, "fixedstockprice"),
		"deliverytime":              intOrNull(rec, "deliverytime"),
		"unlimitedstock":            bool01(rec, "unlimitedstock"),
		"weight":                    intOrZero(rec, "weight"),
		"length":                    intOrNull(rec, "length"),
		"width":                     intOrNull(rec, "width"),
		"height":                    intOrNull(rec, "height"),
		"minimum_purchase_quantity": intOrNull(rec, "minimum_purchase_quantity"),
		"purchase_in_quantities_of": intOrNull(rec, "purchase_in_quantities_of"),
		"hs_code":                   strOrNull(rec, "hs_code"),
		"country_of_origin":         strOrNull(rec, "country_of_origin"),
		"active":                    bool01(rec, "active"),
		"comment_count":             intOrZero(rec, "comment_count"),
		"analysis_pick_amount_per_day": floatOrNull(rec, "analysis_pick_amount_per_day"),
		"tags":          jsonOrNull(rec, "tags"),
		"productfields": jsonOrNull(rec, "productfields"),
		"images":        jsonOrNull(rec, "images"),
		"pricelists":    jsonOrNull(rec, "pricelists"),
		"stock":         jsonOrNull(rec, "stock"),
		"created":       timeOrNull(rec, "created"),
		"updated":       timeOrNull(rec, "updated"),
	}

	return &Mapped{
		PK:        id,
		UpdatedAt: rec.UpdatedAt(),
		Parent:    parent,
	}, nil
}
