// Package mapper turns decoded vendor records into database row
// tuples. Mapping is purely functional and per-record: no I/O, no
// clock, no shared state.
package mapper

import (
	"fmt"
	"time"

	"github.com/fulfillsync/mirror/internal/vendorapi"
)

// Kind is one of the seven replicated record families.
type Kind string

const (
	Products   Kind = "products"
	Picklists  Kind = "picklists"
	Batches    Kind = "batches"
	Users      Kind = "users"
	Suppliers  Kind = "suppliers"
	Warehouses Kind = "warehouses"
	Receipts   Kind = "receipts"
)

// AllKinds lists every entity kind in dispatch order.
func AllKinds() []Kind {
	return []Kind{Products, Picklists, Batches, Users, Suppliers, Warehouses, Receipts}
}

// ParseKind validates an entity kind name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range AllKinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Row maps column name to value; nil values become SQL NULL.
type Row map[string]any

// Mapped is the database image of one vendor record: the parent row
// plus the full owned child sets, keyed by child table name.
type Mapped struct {
	PK        int64
	UpdatedAt time.Time
	Parent    Row
	Children  map[string][]Row
}

// ChildSpec names a child table and its parent foreign key column.
type ChildSpec struct {
	Table string
	FK    string
}

// TableSpec is the writer-facing shape of an entity kind.
type TableSpec struct {
	Parent   string
	PK       string
	Children []ChildSpec
}

var specs = map[Kind]TableSpec{
	Products: {Parent: "Products", PK: "idproduct"},
	Picklists: {Parent: "Picklists", PK: "idpicklist", Children: []ChildSpec{
		{Table: "PicklistProducts", FK: "idpicklist"},
		{Table: "PicklistProductLocations", FK: "idpicklist"},
	}},
	Batches: {Parent: "Batches", PK: "idpicklist_batch", Children: []ChildSpec{
		{Table: "BatchProducts", FK: "idpicklist_batch"},
		{Table: "BatchPicklists", FK: "idpicklist_batch"},
	}},
	Users: {Parent: "Users", PK: "iduser", Children: []ChildSpec{
		{Table: "UserRights", FK: "iduser"},
	}},
	Suppliers:  {Parent: "Suppliers", PK: "idsupplier"},
	Warehouses: {Parent: "Warehouses", PK: "idwarehouse"},
	Receipts: {Parent: "Receipts", PK: "idreceipt", Children: []ChildSpec{
		{Table: "ReceiptProducts", FK: "idreceipt"},
	}},
}

// SpecFor returns the table layout for an entity kind.
func SpecFor(kind Kind) TableSpec {
	return specs[kind]
}

// MappingError marks a record that cannot be mapped (typically a
// missing primary key). The engine skips and counts such records; a
// sync never aborts on them.
type MappingError struct {
	Kind  Kind
	Field string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapper: %s record missing %s", e.Kind, e.Field)
}

// Map dispatches to the per-kind mapping function.
func Map(kind Kind, rec vendorapi.Record) (*Mapped, error) {
	switch kind {
	case Products:
		return mapProduct(rec)
	case Picklists:
		return mapPicklist(rec)
	case Batches:
		return mapBatch(rec)
	case Users:
		return mapUser(rec)
	case Suppliers:
		return mapSupplier(rec)
	case Warehouses:
		return mapWarehouse(rec)
	case Receipts:
		return mapReceipt(rec)
	}
	return nil, fmt.Errorf("mapper: unknown entity kind %q", kind)
}
