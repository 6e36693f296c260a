package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// The schema is an operator-owned input contract: table and column
// names are fixed because downstream analytics select them by name.
// Ensure only ever adds what is missing; it never drops or retypes.

type column struct {
	name string
	typ  string
}

type table struct {
	name    string
	pk      string // empty for child tables (replace-all, no row identity)
	columns []column
	unique  []string // extra UNIQUE constraint column list
	index   []string // non-unique index column list
}

func ts(names ...string) []column {
	cols := make([]column, len(names))
	for i, n := range names {
		cols[i] = column{n, "timestamptz"}
	}
	return cols
}

func bigints(names ...string) []column {
	cols := make([]column, len(names))
	for i, n := range names {
		cols[i] = column{n, "bigint"}
	}
	return cols
}

func texts(names ...string) []column {
	cols := make([]column, len(names))
	for i, n := range names {
		cols[i] = column{n, "text"}
	}
	return cols
}

func flags(names ...string) []column {
	cols := make([]column, len(names))
	for i, n := range names {
		cols[i] = column{n, "smallint"}
	}
	return cols
}

func cat(groups ...[]column) []column {
	var all []column
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

var tables = []table{
	{
		name: "Products", pk: "idproduct",
		columns: cat(
			bigints("idsupplier", "idvatgroup", "idfulfilment_customer", "deliverytime",
				"weight", "length", "width", "height", "minimum_purchase_quantity",
				"purchase_in_quantities_of", "comment_count"),
			texts("productcode", "productcode_supplier", "name", "description", "barcode",
				"type", "hs_code", "country_of_origin", "tags", "productfields", "images",
				"pricelists", "stock"),
			[]column{{"price", "double precision"}, {"fixedstockprice", "double precision"},
				{"analysis_pick_amount_per_day", "double precision"}},
			flags("unlimitedstock", "active"),
			ts("created", "updated", "last_sync_date"),
		),
	},
	{
		name: "Picklists", pk: "idpicklist",
		columns: cat(
			bigints("idcustomer", "idorder", "idreturn", "idwarehouse", "idtemplate",
				"idpicklist_batch", "idshippingprovider_profile", "assigned_to_iduser",
				"closed_by_iduser", "total_products", "total_picked", "comment_count"),
			texts("picklistid", "deliveryname", "deliverycontact", "deliveryaddress",
				"deliveryaddress2", "deliveryzipcode", "deliverycity", "deliveryregion",
				"deliverycountry", "emailaddress", "telephone", "reference", "status"),
			flags("invoiced", "urgent"),
			ts("preferred_delivery_date", "snoozed_until", "closed_at", "created",
				"updated", "last_sync_date"),
		),
	},
	{
		name: "PicklistProducts",
		columns: cat(
			bigints("idpicklist", "idpicklist_product", "idproduct", "idorder_product",
				"idreturn_product_replacement", "idvatgroup", "amount", "amount_picked",
				"weight", "partof_idpicklist_product"),
			texts("productcode", "name", "remarks", "stock_location", "pick_container"),
			[]column{{"price", "double precision"}},
			flags("has_parts", "is_part"),
			ts("created"),
		),
		index: []string{"idpicklist"},
	},
	{
		name: "PicklistProductLocations",
		columns: cat(
			bigints("idpicklist", "idpicklist_product", "idlocation", "amount"),
			texts("name"),
		),
		index: []string{"idpicklist"},
	},
	{
		name: "Batches", pk: "idpicklist_batch",
		columns: cat(
			bigints("idwarehouse", "idfulfilment_customer", "assigned_to_iduser",
				"completed_by_iduser", "total_products", "total_picklists"),
			texts("picklist_batchid", "type", "status", "assigned_to", "completed_by",
				"assigned_to_full_name", "completed_by_full_name"),
			ts("completed_at", "created_at", "updated_at", "last_sync_date"),
		),
		unique: []string{"picklist_batchid"},
	},
	{
		name: "BatchProducts",
		columns: cat(
			bigints("idpicklist_batch", "idproduct", "amount", "amount_picked", "amount_collected"),
			texts("name", "productcode", "barcodes", "image_url", "stock_location"),
		),
		index: []string{"idpicklist_batch"},
	},
	{
		name: "BatchPicklists",
		columns: cat(
			bigints("idpicklist_batch", "idpicklist", "total_products"),
			texts("picklistid", "deliveryname", "status"),
			flags("has_notes", "has_customer_remarks"),
		),
		index: []string{"idpicklist_batch"},
	},
	{
		name: "Users", pk: "iduser",
		columns: cat(
			texts("username", "firstname", "lastname", "full_name", "emailaddress", "language"),
			flags("admin", "active"),
			ts("last_login_at", "created_at", "updated_at", "last_sync_date"),
		),
	},
	{
		name: "UserRights",
		columns: cat(
			bigints("iduser"),
			texts("right_name"),
			flags("granted"),
		),
		index: []string{"iduser"},
	},
	{
		name: "Suppliers", pk: "idsupplier",
		columns: cat(
			texts("name", "contactname", "telephone", "emailaddress", "address", "address2",
				"zipcode", "city", "region", "country", "language", "remarks"),
			ts("created_at", "updated_at", "last_sync_date"),
		),
	},
	{
		name: "Warehouses", pk: "idwarehouse",
		columns: cat(
			texts("name"),
			flags("accept_orders", "unlimited_stock", "counting_enabled", "active"),
			bigints("priority"),
			ts("created_at", "updated_at", "last_sync_date"),
		),
	},
	{
		name: "Receipts", pk: "idreceipt",
		columns: cat(
			bigints("idwarehouse", "idsupplier", "idpurchaseorder", "amount_received",
				"completed_by_iduser"),
			texts("receiptid", "purchaseorderid", "status", "remarks", "supplier_name",
				"completed_by_full_name"),
			ts("completed_at", "created_at", "updated_at", "last_sync_date"),
		),
	},
	{
		name: "ReceiptProducts",
		columns: cat(
			bigints("idreceipt", "idreceipt_product", "idproduct", "idpurchaseorder_product",
				"amount", "amount_receiving", "amount_ordered"),
			texts("productcode", "name", "barcode", "stock_location"),
			ts("created_at"),
		),
		index: []string{"idreceipt"},
	},
	{
		name: "SyncStatus",
		columns: cat(
			texts("entity_name", "entity_type"),
			ts("last_sync_date"),
			bigints("last_sync_count", "total_count"),
		),
		unique: []string{"entity_type"},
	},
	{
		name: "SyncProgress",
		columns: cat(
			texts("sync_id", "entity_type", "mode", "status"),
			bigints("current_offset", "batch_number", "total_batches", "items_processed",
				"total_items"),
			ts("started_at", "last_updated", "completed_at"),
		),
		unique: []string{"entity_type", "sync_id"},
		index:  []string{"entity_type", "status"},
	},
}

// EnsureSchema creates missing tables and adds missing nullable
// columns before the engine runs. Existing columns are never touched.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, t := range tables {
		if err := ensureTable(ctx, pool, t); err != nil {
			return fmt.Errorf("ensure table %s: %w", t.name, err)
		}
	}
	log.Info().Int("tables", len(tables)).Msg("schema ensured")
	return nil
}

func ensureTable(ctx context.Context, pool *pgxpool.Pool, t table) error {
	var defs []string
	if t.pk != "" {
		defs = append(defs, fmt.Sprintf("%s bigint PRIMARY KEY", t.pk))
	}
	for _, c := range t.columns {
		defs = append(defs, fmt.Sprintf("%s %s", c.name, c.typ))
	}
	if len(t.unique) > 0 {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(t.unique, ", ")))
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (%s)`, t.name, strings.Join(defs, ", "))
	if _, err := pool.Exec(ctx, create); err != nil {
		return err
	}

	// The column set drifts over time; new columns are added as
	// nullable so older rows stay valid.
	for _, c := range t.columns {
		alter := fmt.Sprintf(`ALTER TABLE %q ADD COLUMN IF NOT EXISTS %s %s`, t.name, c.name, c.typ)
		if _, err := pool.Exec(ctx, alter); err != nil {
			return err
		}
	}

	if len(t.index) > 0 {
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %q (%s)`,
			strings.ToLower(t.name), strings.Join(t.index, "_"), t.name, strings.Join(t.index, ", "))
		if _, err := pool.Exec(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}
