package mapper

import "github.com/fulfillsync/mirror/internal/vendorapi"

// mapReceipt maps one receipt with its inline product list.
func mapReceipt(rec vendorapi.Record) (*Mapped, error) {
	id, ok := rec.Int64("idreceipt")
	if !ok {
		return nil, &MappingError{Kind: Receipts, Field: "idreceipt"}
	}

	parent := Row{
		"idreceipt":       id,
		"receiptid":       strOrNull(rec, "receiptid"),
		"idwarehouse":     intOrNull(rec, "idwarehouse"),
		"idsupplier":      intOrNull(rec, "idsupplier"),
		"idpurchaseorder": intOrNull(rec, "idpurchaseorder"),
		"purchaseorderid": strOrNull(rec, "purchaseorderid"),
		"status":          strOrNull(rec, "status"),
		"remarks":         strOrNull(rec, "remarks"),
		"amount_received": intOrNull(rec, "amount_received"),
		"completed_at":    timeOrNull(rec, "completed_at"),
		"created_at":      timeOrNull(rec, "created_at"),
		"updated_at":      timeOrNull(rec, "updated_at"),
	}

	// Supplier arrives nested; flatten the analytics-relevant scalars.
	if sup, ok := rec.Map("supplier"); ok {
		parent["idsupplier"] = intOrNull(sup, "idsupplier")
		parent["supplier_name"] = strOrNull(sup, "name")
	} else {
		parent["supplier_name"] = nil
	}
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
				"idreceipt":              id,
				"idreceipt_product":      intOrNull(pr, "idreceipt_product"),
				"idproduct":              intOrNull(pr, "idproduct"),
				"idpurchaseorder_product": intOrNull(pr, "idpurchaseorder_product"),
				"productcode":            strOrNull(pr, "productcode"),
				"name":                   strOrNull(pr, "name"),
				"barcode":                strOrNull(pr, "barcode"),
				"amount":                 intOrZero(pr, "amount"),
				"amount_receiving":       intOrNull(pr, "amount_receiving"),
				"amount_ordered":         intOrNull(pr, "amount_ordered"),
				"stock_location":         jsonOrNull(pr, "stock_location"),
				"created_at":             timeOrNull(pr, "created_at"),
			})
		}
	}

	return &Mapped{
		PK:        id,
		UpdatedAt: rec.UpdatedAt(),
		Parent:    parent,
		Children:  map[string][]Row{"ReceiptProducts": products},
	}, nil
}
