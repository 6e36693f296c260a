package mapper

import "github.com/fulfillsync/mirror/internal/vendorapi"

// HasPicklistDetail reports whether a picklist payload already
// carries its products. Summary pages sometimes omit them; the engine
// then issues a per-picklist detail fetch.
func HasPicklistDetail(rec vendorapi.Record) bool {
	_, ok := rec.Slice("products")
	return ok
}

// mapPicklist maps one picklist with its owned product and
// pick-location child sets. Both child tables are keyed by
// idpicklist so a parent write replaces them atomically.
func mapPicklist(rec vendorapi.Record) (*Mapped, error) {
	id, ok := rec.Int64("idpicklist")
	if !ok {
		return nil, &MappingError{Kind: Picklists, Field: "idpicklist"}
	}

	parent := Row{
		"idpicklist":                  id,
		"picklistid":                  strOrNull(rec, "picklistid"),
		"idcustomer":                  intOrNull(rec, "idcustomer"),
		"idorder":                     intOrNull(rec, "idorder"),
		"idreturn":                    intOrNull(rec, "idreturn"),
		"idwarehouse":                 intOrNull(rec, "idwarehouse"),
		"idtemplate":                  intOrNull(rec, "idtemplate"),
		"idpicklist_batch":            intOrNull(rec, "idpicklist_batch"),
		"idshippingprovider_profile":  intOrNull(rec, "idshippingprovider_profile"),
		"deliveryname":                strOrNull(rec, "deliveryname"),
		"deliverycontact":             strOrNull(rec, "deliverycontact"),
		"deliveryaddress":             strOrNull(rec, "deliveryaddress"),
		"deliveryaddress2":            strOrNull(rec, "deliveryaddress2"),
		"deliveryzipcode":             strOrNull(rec, "deliveryzipcode"),
		"deliverycity":                strOrNull(rec, "deliverycity"),
		"deliveryregion":              strOrNull(rec, "deliveryregion"),
		"deliverycountry":             strOrNull(rec, "deliverycountry"),
		"emailaddress":                strOrNull(rec, "emailaddress"),
		"telephone":                   strOrNull(rec, "telephone"),
		"reference":                   strOrNull(rec, "reference"),
		"assigned_to_iduser":          intOrNull(rec, "assigned_to_iduser"),
		"invoiced":                    bool01(rec, "invoiced"),
		"urgent":                      bool01(rec, "urgent"),
		"preferred_delivery_date":     timeOrNull(rec, "preferred_delivery_date"),
		"status":                      strOrNull(rec, "status"),
		"total_products":              intOrZero(rec, "total_products"),
		"total_picked":                intOrNull(rec, "total_picked"),
		"snoozed_until":               timeOrNull(rec, "snoozed_until"),
		"closed_by_iduser":            intOrNull(rec, "closed_by_iduser"),
		"closed_at":                   timeOrNull(rec, "closed_at"),
		"comment_count":               intOrZero(rec, "comment_count"),
		"created":                     timeOrNull(rec, "created"),
		"updated":                     timeOrNull(rec, "updated"),
	}

	var products, locations []Row
	if items, ok := rec.Slice("products"); ok {
		for _, item := range items {
			prec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			pr := vendorapi.Record(prec)
			ppID := intOrNull(pr, "idpicklist_product")
			products = append(products, Row{
				"idpicklist":                   id,
				"idpicklist_product":           ppID,
				"idproduct":                    intOrNull(pr, "idproduct"),
				"idorder_product":              intOrNull(pr, "idorder_product"),
				"idreturn_product_replacement": intOrNull(pr, "idreturn_product_replacement"),
				"idvatgroup":                   intOrNull(pr, "idvatgroup"),
				"productcode":                  strOrNull(pr, "productcode"),
				"name":                         strOrNull(pr, "name"),
				"remarks":                      strOrNull(pr, "remarks"),
				"amount":                       intOrZero(pr, "amount"),
				"amount_picked":                intOrZero(pr, "amount_picked"),
				"price":                        floatOrNull(pr, "price"),
				"weight":                       intOrZero(pr, "weight"),
				"stock_location":               strOrNull(pr, "stocklocation"),
				"partof_idpicklist_product":    intOrNull(pr, "partof_idpicklist_product"),
				"has_parts":                    bool01(pr, "has_parts"),
				"is_part":                      bool01(pr, "is_part"),
				"pick_container":               strOrNull(pr, "pick_container"),
				"created":                      timeOrNull(pr, "created"),
			})

			if locs, ok := pr.Slice("pick_locations"); ok {
				for _, l := range locs {
					lrec, ok := l.(map[string]any)
					if !ok {
						continue
					}
					lr := vendorapi.Record(lrec)
					locations = append(locations, Row{
						"idpicklist":         id,
						"idpicklist_product": ppID,
						"idlocation":         intOrNull(lr, "idlocation"),
						"name":               strOrNull(lr, "name"),
						"amount":             intOrZero(lr, "amount"),
					})
				}
			}
		}
	}

	return &Mapped{
		PK:        id,
		UpdatedAt: rec.UpdatedAt(),
		Parent:    parent,
		Children: map[string][]Row{
			"PicklistProducts":         products,
			"PicklistProductLocations": locations,
		},
	}, nil
}
