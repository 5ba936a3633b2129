// Package variables resolves named numeric game quantities. The Registry
// holds the content defaults; the Engine layers effect sources over them.
package variables

import (
	"sort"
	"strings"

	apperrors "stellarforge.ai/internal/platform/errors"
	"stellarforge.ai/internal/sim/catalogs"
)

type Category int

const (
	Districts Category = iota
	Buildings
	Empire
	Systems
	Resources
	Technologies
	Ships

	numCategories
)

var categoryNames = [numCategories]string{
	Districts:    "districts",
	Buildings:    "buildings",
	Empire:       "empire",
	Systems:      "systems",
	Resources:    "resources",
	Technologies: "technologies",
	Ships:        "ships",
}

func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return "unknown"
	}
	return categoryNames[c]
}

func ParseCategory(s string) (Category, bool) {
	for i, n := range categoryNames {
		if n == s {
			return Category(i), true
		}
	}
	return 0, false
}

// Categories lists every category in declaration order.
func Categories() []Category {
	out := make([]Category, numCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// Registry is the immutable table of default variable values, one flat
// path table per category.
type Registry struct {
	tables [numCategories]map[string]float64
}

func NewRegistry(c *catalogs.Catalogs) *Registry {
	r := &Registry{}
	trees := [numCategories]map[string]any{
		Districts:    c.Districts.Tree,
		Buildings:    c.Buildings.Tree,
		Empire:       c.Empire.Tree,
		Systems:      c.Systems.Tree,
		Resources:    c.Resources.Tree,
		Technologies: c.Technologies.Tree,
		Ships:        c.Ships.Tree,
	}
	for i, tree := range trees {
		table := map[string]float64{}
		flatten(tree, categoryNames[i]+".", table)
		r.tables[i] = table
	}
	return r
}

func flatten(node map[string]any, prefix string, into map[string]float64) {
	for k, v := range node {
		switch x := v.(type) {
		case map[string]any:
			flatten(x, prefix+k+".", into)
		case int:
			into[prefix+k] = float64(x)
		case int64:
			into[prefix+k] = float64(x)
		case uint64:
			into[prefix+k] = float64(x)
		case float64:
			into[prefix+k] = x
		}
	}
}

func (r *Registry) lookup(path string) (float64, bool) {
	head, _, ok := strings.Cut(path, ".")
	if !ok {
		return 0, false
	}
	cat, ok := ParseCategory(head)
	if !ok {
		return 0, false
	}
	v, ok := r.tables[cat][path]
	return v, ok
}

// Has reports whether path is a standard variable.
func (r *Registry) Has(path string) bool {
	_, ok := r.lookup(path)
	return ok
}

// InitialValue returns the content default of path.
func (r *Registry) InitialValue(path string) (float64, error) {
	v, ok := r.lookup(path)
	if !ok {
		return 0, apperrors.NotFound("variable %s", path)
	}
	return v, nil
}

// CategoryDefaults seeds a Vars with every variable of one category.
func (r *Registry) CategoryDefaults(cat Category) *Vars {
	v := r.NewVars()
	for path, val := range r.tables[cat] {
		v.std[path] = val
	}
	return v
}

// Seed returns a Vars holding the initial values of the given paths.
func (r *Registry) Seed(paths ...string) (*Vars, error) {
	v := r.NewVars()
	for _, p := range paths {
		val, err := r.InitialValue(p)
		if err != nil {
			return nil, err
		}
		v.std[p] = val
	}
	return v, nil
}

func (r *Registry) NewVars() *Vars {
	return &Vars{reg: r, std: map[string]float64{}, extra: map[string]float64{}}
}

// Paths returns every standard path of a category, sorted.
func (r *Registry) Paths(cat Category) []string {
	out := make([]string, 0, len(r.tables[cat]))
	for p := range r.tables[cat] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Vars is a working set of variable values. Paths unknown to the registry
// that effects introduce live in a separate extra table.
type Vars struct {
	reg   *Registry
	std   map[string]float64
	extra map[string]float64
}

func (v *Vars) Get(path string) (float64, bool) {
	if x, ok := v.std[path]; ok {
		return x, true
	}
	x, ok := v.extra[path]
	return x, ok
}

func (v *Vars) Set(path string, value float64) {
	if v.reg.Has(path) {
		v.std[path] = value
		return
	}
	v.extra[path] = value
}

func (v *Vars) update(path string, f func(float64) float64) bool {
	if x, ok := v.std[path]; ok {
		v.std[path] = f(x)
		return true
	}
	if x, ok := v.extra[path]; ok {
		v.extra[path] = f(x)
		return true
	}
	return false
}

// Standard returns a copy of the registry-backed values.
func (v *Vars) Standard() map[string]float64 {
	out := make(map[string]float64, len(v.std))
	for k, x := range v.std {
		out[k] = x
	}
	return out
}

// Extra returns a copy of the effect-introduced values.
func (v *Vars) Extra() map[string]float64 {
	out := make(map[string]float64, len(v.extra))
	for k, x := range v.extra {
		out[k] = x
	}
	return out
}
