package engine

import (
	"fmt"
	"net/url"

	"github.com/fulfillsync/mirror/internal/mapper"
	"github.com/fulfillsync/mirror/internal/vendorapi"
)

// entitySpec binds an entity kind to its upstream endpoints and the
// per-parent detail policy.
type entitySpec struct {
	kind     mapper.Kind
	listPath string
	// listParams are sent on every page fetch.
	listParams url.Values
	// detailPath, when set, names the per-parent detail endpoint.
	detailPath func(id int64) string
	// detailAlways forces a detail fetch per parent (batches: the
	// child collections only exist in the detail payload).
	detailAlways bool
	// hasDetail reports whether a summary record already carries the
	// detail payload; a fetch is issued only when it does not.
	hasDetail func(rec vendorapi.Record) bool
}

var entitySpecs = map[mapper.Kind]entitySpec{
	mapper.Products: {
		kind:     mapper.Products,
		listPath: "/products",
		listParams: url.Values{
			"includestock":  {"1"},
			"includefields": {"1"},
		},
	},
	mapper.Picklists: {
		kind:       mapper.Picklists,
		listPath:   "/picklists",
		detailPath: func(id int64) string { return fmt.Sprintf("/picklists/%d", id) },
		hasDetail:  mapper.HasPicklistDetail,
	},
	mapper.Batches: {
		kind:         mapper.Batches,
		listPath:     "/picklists/batches",
		detailPath:   func(id int64) string { return fmt.Sprintf("/picklists/batches/%d", id) },
		detailAlways: true,
	},
	mapper.Users: {
		kind:       mapper.Users,
		listPath:   "/users",
		detailPath: func(id int64) string { return fmt.Sprintf("/users/%d", id) },
		hasDetail:  mapper.HasUserDetail,
	},
	mapper.Suppliers: {
		kind:     mapper.Suppliers,
		listPath: "/suppliers",
	},
	mapper.Warehouses: {
		kind:     mapper.Warehouses,
		listPath: "/warehouses",
	},
	mapper.Receipts: {
		kind:     mapper.Receipts,
		listPath: "/receipts",
	},
}
