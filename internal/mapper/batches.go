package mapper

import (
	"fmt"

	"github.com/fulfillsync/mirror/internal/vendorapi"
)

// mapBatch maps one picklist batch. Products and picklists only
// appear in the detail payload, which the engine always fetches.
// assigned_to and completed_by are stored twice: the JSON text column
// is authoritative, the flattened {iduser, full_name} scalars are a
// convenience projection for analytics.
func mapBatch(rec vendorapi.Record) (*Mapped, error) {
	id, ok := rec.Int64("idpicklist_batch")
	if !ok {
		return nil, &MappingError{Kind: Batches, Field: "idpicklist_batch"}
	}

	// The parent uniqueness contract needs a non-null batch id even
	// when the vendor omits it.
	batchID, ok := rec.Str("picklist_batchid")
	if !ok || batchID == "" {
		batchID = fmt.Sprintf("BATCH-%d", id)
	}

	parent := Row{
		"idpicklist_batch": id,
		"picklist_batchid": batchID,
		"idwarehouse":      intOrNull(rec, "idwarehouse"),
		"idfulfilment_customer": intOrNull(rec, "idfulfilment_customer"),
		"type":             strOrNull(rec, "type"),
		"status":           strOrNull(rec, "status"),
		"assigned_to":      jsonOrNull(rec, "assigned_to"),
		"completed_by":     jsonOrNull(rec, "completed_by"),
		"total_products":   intOrZero(rec, "total_products"),
		"total_picklists":  intOrZero(rec, "total_picklists"),
		"completed_at":     timeOrNull(rec, "completed_at"),
		"created_at":       timeOrNull(rec, "created_at"),
		"updated_at":       timeOrNull(rec, "updated_at"),
	}

	parent["assigned_to_iduser"], parent["assigned_to_full_name"] = userProjection(rec, "assigned_to")
	parent["completed_by_iduser"], parent["completed_by_full_name"] = userProjection(rec, "completed_by")

	var products []Row
	if items, ok := rec.Slice("products"); ok {
		for _, item := range items {
			prec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			pr := vendorapi.Record(prec)
			products = append(products, Row{
				"idpicklist_batch": id,
				"idproduct":        intOrNull(pr, "idproduct"),
				"name":             strOrNull(pr, "name"),
				"productcode":      strOrNull(pr, "productcode"),
				"barcodes":         jsonOrNull(pr, "barcodes"),
				"image_url":        strOrNull(pr, "image_url"),
				"amount":           intOrZero(pr, "amount"),
				"amount_picked":    intOrZero(pr, "amount_picked"),
				"amount_collected": intOrNull(pr, "amount_collected"),
				"stock_location":   jsonOrNull(pr, "stock_location"),
			})
		}
	}

	var picklists []Row
	if items, ok := rec.Slice("picklists"); ok {
		for _, item := range items {
			prec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			pr := vendorapi.Record(prec)
			picklists = append(picklists, Row{
				"idpicklist_batch": id,
				"idpicklist":       intOrNull(pr, "idpicklist"),
				"picklistid":       strOrNull(pr, "picklistid"),
				"deliveryname":     strOrNull(pr, "deliveryname"),
				"status":           strOrNull(pr, "status"),
				"total_products":   intOrZero(pr, "total_products"),
				"has_notes":        bool01(pr, "has_notes"),
				"has_customer_remarks": bool01(pr, "has_customer_remarks"),
			})
		}
	}

	return &Mapped{
		PK:        id,
		UpdatedAt: rec.UpdatedAt(),
		Parent:    parent,
		Children: map[string][]Row{
			"BatchProducts":  products,
			"BatchPicklists": picklists,
		},
	}, nil
}

// userProjection flattens a nested {iduser, full_name} object.
func userProjection(rec vendorapi.Record, key string) (any, any) {
	nested, ok := rec.Map(key)
	if !ok {
		return nil, nil
	}
	return intOrNull(nested, "iduser"), strOrNull(nested, "full_name")
}
