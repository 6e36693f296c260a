package mapper

import "github.com/fulfillsync/mirror/internal/vendorapi"

func mapSupplier(rec vendorapi.Record) (*Mapped, error) {
	id, ok := rec.Int64("idsupplier")
	if !ok {
		return nil, &MappingError{Kind: Suppliers, Field: "idsupplier"}
	}

	parent := Row{
		"idsupplier":   id,
		"name":         strOrNull(rec, "name"),
		"contactname":  strOrNull(rec, "contactname"),
		"telephone":    strOrNull(rec, "telephone"),
		"emailaddress": strOrNull(rec, "emailaddress"),
		"address":      strOrNull(rec, "address"),
		"address2":     strOrNull(rec, "address2"),
		"zipcode":      strOrNull(rec, "zipcode"),
		"city":         strOrNull(rec, "city"),
		"region":       strOrNull(rec, "region"),
		"country":      strOrNull(rec, "country"),
		"language":     strOrNull(rec, "language"),
		"remarks":      strOrNull(rec, "remarks"),
		"created_at":   timeOrNull(rec, "created_at"),
		"updated_at":   timeOrNull(rec, "updated_at"),
	}

	return &Mapped{PK: id, UpdatedAt: rec.UpdatedAt(), Parent: parent}, nil
}
