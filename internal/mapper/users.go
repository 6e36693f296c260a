package mapper

import (
	"sort"

	"github.com/fulfillsync/mirror/internal/vendorapi"
)

// HasUserDetail reports whether a user payload carries its rights
// map. List pages omit it; the engine then fetches the detail.
func HasUserDetail(rec vendorapi.Record) bool {
	_, ok := rec.Map("rights")
	return ok
}

// mapUser maps one user and its rights as UserRights child rows. The
// vendor models rights as a name→granted object; rows are emitted in
// sorted name order so re-ingesting the same record yields the same
// row sequence.
func mapUser(rec vendorapi.Record) (*Mapped, error) {
	id, ok := rec.Int64("iduser")
	if !ok {
		return nil, &MappingError{Kind: Users, Field: "iduser"}
	}

	parent := Row{
		"iduser":        id,
		"username":      strOrNull(rec, "username"),
		"firstname":     strOrNull(rec, "firstname"),
		"lastname":      strOrNull(rec, "lastname"),
		"full_name":     strOrNull(rec, "full_name"),
		"emailaddress":  strOrNull(rec, "emailaddress"),
		"language":      strOrNull(rec, "language"),
		"admin":         bool01(rec, "admin"),
		"active":        bool01(rec, "active"),
		"last_login_at": timeOrNull(rec, "last_login_at"),
		"created_at":    timeOrNull(rec, "created_at"),
		"updated_at":    timeOrNull(rec, "updated_at"),
	}

	var rights []Row
	if m, ok := rec.Map("rights"); ok {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			granted := int16(0)
			if g, ok := m[name].(bool); ok && g {
				granted = 1
			}
			rights = append(rights, Row{
				"iduser":     id,
				"right_name": name,
				"granted":    granted,
			})
		}
	}

	return &Mapped{
		PK:        id,
		UpdatedAt: rec.UpdatedAt(),
		Parent:    parent,
		Children:  map[string][]Row{"UserRights": rights},
	}, nil
}
