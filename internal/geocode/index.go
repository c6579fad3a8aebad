package geocode

import (
	"errors"
	"sort"

	"github.com/golang/geo/r2"

	appLog "playamap/internal/log"
	"playamap/internal/model"
)

// Diagnostic records a camp that could not be placed.
type Diagnostic struct {
	CampUID  string
	CampName string
	Err      error
}

// Index maps camp uid to map coordinate. Only camps that resolved have an
// entry. It is read-only after BuildIndex returns.
type Index struct {
	coords map[string]r2.Point
	total  int
}

// BuildIndex resolves every camp once. Failures are returned as diagnostics
// and logged; they never abort the build.
func BuildIndex(camps []model.Camp, r *Resolver) (*Index, []Diagnostic) {
	ix := &Index{
		coords: make(map[string]r2.Point, len(camps)),
		total:  len(camps),
	}
	var diags []Diagnostic

	for _, camp := range camps {
		if camp.Location == nil {
			diags = append(diags, Diagnostic{CampUID: camp.UID, CampName: camp.Name, Err: ErrNoLocation})
			appLog.Debug("camp has no location", "camp", camp.Name, "uid", camp.UID)
			continue
		}

		p, err := r.Resolve(*camp.Location)
		if err != nil {
			diags = append(diags, Diagnostic{CampUID: camp.UID, CampName: camp.Name, Err: err})
			kv := []any{"camp", camp.Name, "uid", camp.UID, "reason", err}
			var ue *UnresolvableError
			if errors.As(err, &ue) {
				kv = []any{"camp", camp.Name, "uid", camp.UID, "reason", ue.Reason, "field", ue.Field, "value", ue.Value}
			}
			appLog.Warn("unresolvable camp location", kv...)
			continue
		}

		if camp.UID == "" {
			diags = append(diags, Diagnostic{CampName: camp.Name, Err: ErrMissingUID})
			appLog.Warn("located camp has no uid", "camp", camp.Name, "x", p.X, "y", p.Y)
			continue
		}
		ix.coords[camp.UID] = p
	}

	appLog.Info("camp location index built",
		"camps", ix.total,
		"mapped", len(ix.coords),
		"unresolved", len(diags),
		"calibration", r.cal.Name,
	)
	return ix, diags
}

// Lookup returns the coordinate for a camp uid.
func (ix *Index) Lookup(uid string) (r2.Point, bool) {
	if ix == nil {
		return r2.Point{}, false
	}
	p, ok := ix.coords[uid]
	return p, ok
}

// Len is the number of mapped camps.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.coords)
}

// Total is the number of camps the index was built from.
func (ix *Index) Total() int {
	if ix == nil {
		return 0
	}
	return ix.total
}

// UIDs returns the mapped camp uids in sorted order.
func (ix *Index) UIDs() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, 0, len(ix.coords))
	for uid := range ix.coords {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}
