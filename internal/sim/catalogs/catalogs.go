package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"stellarforge.ai/internal/sim/model"
)

//go:embed content/*.yaml
var content embed.FS

// Catalogs is the static game content. It is loaded once at startup and
// shared read-only by every game.
type Catalogs struct {
	Resources    ResourceCatalog
	Districts    ConstructionCatalog
	Buildings    ConstructionCatalog
	Systems      UpgradeCatalog
	Empire       EmpireCatalog
	Technologies TechnologyCatalog
	Ships        ShipCatalog
	Traits       TraitCatalog
	Scoring      ScoringCatalog
}

type ResourceCatalog struct {
	Names  []string
	ByID   map[string]ResourceDef
	Tree   map[string]any
	Digest string
}

type ResourceDef struct {
	ID          string  `yaml:"id" json:"id"`
	CreditValue float64 `yaml:"credit_value" json:"credit_value"`
	Starting    float64 `yaml:"starting" json:"starting"`
}

// ConstructionCatalog holds districts or buildings; both share one shape.
type ConstructionCatalog struct {
	IDs    []string
	ByID   map[string]ConstructionDef
	Tree   map[string]any
	Digest string
}

type ConstructionDef struct {
	ID         string             `yaml:"id" json:"id"`
	BuildTime  float64            `yaml:"build_time" json:"build_time"`
	Cost       map[string]float64 `yaml:"cost" json:"cost"`
	Upkeep     map[string]float64 `yaml:"upkeep" json:"upkeep"`
	Production map[string]float64 `yaml:"production" json:"production"`
}

type UpgradeCatalog struct {
	Order  []string
	ByID   map[string]UpgradeDef
	Tree   map[string]any
	Digest string
}

type UpgradeDef struct {
	ID                 string             `yaml:"id" json:"id"`
	Next               string             `yaml:"next" json:"next,omitempty"`
	UpgradeTime        float64            `yaml:"upgrade_time" json:"upgrade_time"`
	Health             float64            `yaml:"health" json:"health"`
	Defense            float64            `yaml:"defense" json:"defense"`
	PopGrowth          float64            `yaml:"pop_growth" json:"pop_growth"`
	CapacityMultiplier float64            `yaml:"capacity_multiplier" json:"capacity_multiplier"`
	Cost               map[string]float64 `yaml:"cost" json:"cost"`
	Upkeep             map[string]float64 `yaml:"upkeep" json:"upkeep"`
}

// Next returns the stage after stage, if any.
func (c UpgradeCatalog) Next(stage string) (string, bool) {
	d, ok := c.ByID[stage]
	if !ok || d.Next == "" {
		return "", false
	}
	return d.Next, true
}

// Index returns the position of stage in the upgrade order, or -1.
func (c UpgradeCatalog) Index(stage string) int {
	for i, s := range c.Order {
		if s == stage {
			return i
		}
	}
	return -1
}

type EmpireCatalog struct {
	Tree   map[string]any
	Digest string
}

type TechnologyCatalog struct {
	IDs        []string
	ByID       map[string]TechnologyDef
	Categories map[string]TechCategoryDef
	Tree       map[string]any
	Digest     string
}

type TechCategoryDef struct {
	ID             string  `yaml:"id" json:"id"`
	CostMultiplier float64 `yaml:"cost_multiplier" json:"cost_multiplier"`
}

type TechnologyDef struct {
	ID       string         `yaml:"id" json:"id"`
	Tags     []string       `yaml:"tags" json:"tags"`
	Cost     float64        `yaml:"cost" json:"cost"`
	Requires []string       `yaml:"requires" json:"requires,omitempty"`
	Implies  []string       `yaml:"implies" json:"implies,omitempty"`
	Effects  []model.Effect `yaml:"effects" json:"effects"`
}

// PrimaryTag is the research lane of the technology.
func (t TechnologyDef) PrimaryTag() string {
	if len(t.Tags) == 0 {
		return ""
	}
	return t.Tags[0]
}

type ShipCatalog struct {
	IDs    []string
	ByID   map[string]ShipDef
	Tree   map[string]any
	Digest string
}

type ShipDef struct {
	ID        string             `yaml:"id" json:"id"`
	BuildTime float64            `yaml:"build_time" json:"build_time"`
	Speed     float64            `yaml:"speed" json:"speed"`
	Health    float64            `yaml:"health" json:"health"`
	Attack    float64            `yaml:"attack" json:"attack"`
	Defense   float64            `yaml:"defense" json:"defense"`
	Cost      map[string]float64 `yaml:"cost" json:"cost"`
	Upkeep    map[string]float64 `yaml:"upkeep" json:"upkeep"`
}

type TraitCatalog struct {
	IDs    []string
	ByID   map[string]TraitDef
	Digest string
}

type TraitDef struct {
	ID        string         `yaml:"id" json:"id"`
	Cost      float64        `yaml:"cost" json:"cost"`
	Conflicts []string       `yaml:"conflicts" json:"conflicts,omitempty"`
	Effects   []model.Effect `yaml:"effects" json:"effects"`
}

type ScoringCatalog struct {
	Economy    map[string]float64 `yaml:"economy" json:"economy"`
	Military   MilitaryWeights    `yaml:"military" json:"military"`
	Technology TechnologyWeights  `yaml:"technology" json:"technology"`
	Digest     string             `yaml:"-" json:"-"`
}

type MilitaryWeights struct {
	Health        float64 `yaml:"health" json:"health"`
	Attack        float64 `yaml:"attack" json:"attack"`
	Defense       float64 `yaml:"defense" json:"defense"`
	SystemDefense float64 `yaml:"system_defense" json:"system_defense"`
}

type TechnologyWeights struct {
	Cost float64 `yaml:"cost" json:"cost"`
}

// Default loads the content embedded in the binary.
func Default() (*Catalogs, error) {
	return Load("")
}

// Load reads content from configDir. Files missing from configDir fall back
// to the embedded defaults; an empty configDir uses only the defaults.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	src := source{dir: configDir}

	if err := loadResources(src, &c.Resources); err != nil {
		return nil, err
	}
	if err := loadConstructions(src, "districts.yaml", &c.Districts); err != nil {
		return nil, err
	}
	if err := loadConstructions(src, "buildings.yaml", &c.Buildings); err != nil {
		return nil, err
	}
	if err := loadUpgrades(src, &c.Systems); err != nil {
		return nil, err
	}
	if err := loadEmpire(src, &c.Empire); err != nil {
		return nil, err
	}
	if err := loadTechnologies(src, &c.Technologies); err != nil {
		return nil, err
	}
	if err := loadShips(src, &c.Ships); err != nil {
		return nil, err
	}
	if err := loadTraits(src, &c.Traits); err != nil {
		return nil, err
	}
	if err := loadScoring(src, &c.Scoring); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digests returns the content digest of every catalog by file name.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		"resources":    c.Resources.Digest,
		"districts":    c.Districts.Digest,
		"buildings":    c.Buildings.Digest,
		"systems":      c.Systems.Digest,
		"empire":       c.Empire.Digest,
		"technologies": c.Technologies.Digest,
		"ships":        c.Ships.Digest,
		"traits":       c.Traits.Digest,
		"scoring":      c.Scoring.Digest,
	}
}

// IsResource reports whether name is a known resource.
func (c *Catalogs) IsResource(name string) bool {
	_, ok := c.Resources.ByID[name]
	return ok
}

type source struct{ dir string }

func (s source) read(name string) ([]byte, error) {
	if s.dir != "" {
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err == nil {
			return raw, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return content.ReadFile("content/" + name)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// keyedTree turns a list of records into an id-keyed tree for flattening.
func keyedTree(name string, raw []byte) (map[string]any, error) {
	var items []map[string]any
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	tree := make(map[string]any, len(items))
	for _, it := range items {
		id, _ := it["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("%s: empty id", name)
		}
		if _, dup := tree[id]; dup {
			return nil, fmt.Errorf("%s: duplicate id %q", name, id)
		}
		tree[id] = it
	}
	return tree, nil
}

func loadResources(src source, out *ResourceCatalog) error {
	raw, err := src.read("resources.yaml")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if out.Tree, err = keyedTree("resources.yaml", raw); err != nil {
		return err
	}
	var defs []ResourceDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("resources.yaml: %w", err)
	}
	out.ByID = make(map[string]ResourceDef, len(defs))
	for _, d := range defs {
		out.Names = append(out.Names, d.ID)
		out.ByID[d.ID] = d
	}
	return nil
}

func loadConstructions(src source, name string, out *ConstructionCatalog) error {
	raw, err := src.read(name)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if out.Tree, err = keyedTree(name, raw); err != nil {
		return err
	}
	var defs []ConstructionDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	out.ByID = make(map[string]ConstructionDef, len(defs))
	for _, d := range defs {
		out.IDs = append(out.IDs, d.ID)
		out.ByID[d.ID] = d
	}
	return nil
}

func loadUpgrades(src source, out *UpgradeCatalog) error {
	raw, err := src.read("systems.yaml")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if out.Tree, err = keyedTree("systems.yaml", raw); err != nil {
		return err
	}
	var defs []UpgradeDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("systems.yaml: %w", err)
	}
	out.ByID = make(map[string]UpgradeDef, len(defs))
	for _, d := range defs {
		out.Order = append(out.Order, d.ID)
		out.ByID[d.ID] = d
	}
	return nil
}

func loadEmpire(src source, out *EmpireCatalog) error {
	raw, err := src.read("empire.yaml")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	out.Tree = map[string]any{}
	if err := yaml.Unmarshal(raw, &out.Tree); err != nil {
		return fmt.Errorf("empire.yaml: %w", err)
	}
	return nil
}

func loadTechnologies(src source, out *TechnologyCatalog) error {
	raw, err := src.read("technologies.yaml")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var doc struct {
		Categories   []TechCategoryDef `yaml:"categories"`
		Technologies []TechnologyDef   `yaml:"technologies"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("technologies.yaml: %w", err)
	}
	var generic struct {
		Categories []map[string]any `yaml:"categories"`
	}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("technologies.yaml: %w", err)
	}

	out.Tree = make(map[string]any, len(generic.Categories))
	out.Categories = make(map[string]TechCategoryDef, len(doc.Categories))
	for i, c := range doc.Categories {
		if c.ID == "" {
			return fmt.Errorf("technologies.yaml: empty category id")
		}
		out.Categories[c.ID] = c
		out.Tree[c.ID] = generic.Categories[i]
	}
	out.ByID = make(map[string]TechnologyDef, len(doc.Technologies))
	for _, t := range doc.Technologies {
		if t.ID == "" {
			return fmt.Errorf("technologies.yaml: empty id")
		}
		if _, dup := out.ByID[t.ID]; dup {
			return fmt.Errorf("technologies.yaml: duplicate id %q", t.ID)
		}
		out.IDs = append(out.IDs, t.ID)
		out.ByID[t.ID] = t
	}
	return nil
}

func loadShips(src source, out *ShipCatalog) error {
	raw, err := src.read("ships.yaml")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if out.Tree, err = keyedTree("ships.yaml", raw); err != nil {
		return err
	}
	var defs []ShipDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("ships.yaml: %w", err)
	}
	out.ByID = make(map[string]ShipDef, len(defs))
	for _, d := range defs {
		out.IDs = append(out.IDs, d.ID)
		out.ByID[d.ID] = d
	}
	return nil
}

func loadTraits(src source, out *TraitCatalog) error {
	raw, err := src.read("traits.yaml")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	var defs []TraitDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("traits.yaml: %w", err)
	}
	out.ByID = make(map[string]TraitDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("traits.yaml: empty id")
		}
		out.IDs = append(out.IDs, d.ID)
		out.ByID[d.ID] = d
	}
	return nil
}

func loadScoring(src source, out *ScoringCatalog) error {
	raw, err := src.read("scoring.yaml")
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("scoring.yaml: %w", err)
	}
	out.Digest = sha256Hex(raw)
	return nil
}

func (c *Catalogs) validate() error {
	if len(c.Resources.Names) == 0 {
		return fmt.Errorf("resources.yaml: no resources")
	}
	for _, cat := range []struct {
		name string
		defs map[string]ConstructionDef
	}{{"districts.yaml", c.Districts.ByID}, {"buildings.yaml", c.Buildings.ByID}} {
		for _, id := range sortedKeys(cat.defs) {
			d := cat.defs[id]
			if err := c.checkResources(cat.name, id, d.Cost, d.Upkeep, d.Production); err != nil {
				return err
			}
		}
	}

	if len(c.Systems.Order) == 0 {
		return fmt.Errorf("systems.yaml: no upgrade stages")
	}
	for i, id := range c.Systems.Order {
		d := c.Systems.ByID[id]
		want := ""
		if i+1 < len(c.Systems.Order) {
			want = c.Systems.Order[i+1]
		}
		if d.Next != want {
			return fmt.Errorf("systems.yaml: %s: next must be %q, got %q", id, want, d.Next)
		}
		if err := c.checkResources("systems.yaml", id, d.Cost, d.Upkeep); err != nil {
			return err
		}
	}

	for _, id := range c.Technologies.IDs {
		t := c.Technologies.ByID[id]
		if len(t.Tags) == 0 {
			return fmt.Errorf("technologies.yaml: %s: no tags", id)
		}
		for _, tag := range t.Tags {
			if _, ok := c.Technologies.Categories[tag]; !ok {
				return fmt.Errorf("technologies.yaml: %s: unknown tag %q", id, tag)
			}
		}
		for _, ref := range append(append([]string(nil), t.Requires...), t.Implies...) {
			if _, ok := c.Technologies.ByID[ref]; !ok {
				return fmt.Errorf("technologies.yaml: %s: unknown technology %q", id, ref)
			}
		}
	}

	for _, id := range c.Ships.IDs {
		d := c.Ships.ByID[id]
		if d.Speed <= 0 {
			return fmt.Errorf("ships.yaml: %s: speed must be > 0", id)
		}
		if err := c.checkResources("ships.yaml", id, d.Cost, d.Upkeep); err != nil {
			return err
		}
	}

	for _, id := range c.Traits.IDs {
		for _, other := range c.Traits.ByID[id].Conflicts {
			if _, ok := c.Traits.ByID[other]; !ok {
				return fmt.Errorf("traits.yaml: %s: unknown conflict %q", id, other)
			}
		}
	}

	for res, w := range c.Scoring.Economy {
		if !c.IsResource(res) {
			return fmt.Errorf("scoring.yaml: unknown resource %q", res)
		}
		if w < 0 {
			return fmt.Errorf("scoring.yaml: economy.%s must be >= 0", res)
		}
	}
	m := c.Scoring.Military
	if m.Health < 0 || m.Attack < 0 || m.Defense < 0 || m.SystemDefense < 0 || c.Scoring.Technology.Cost < 0 {
		return fmt.Errorf("scoring.yaml: weights must be >= 0")
	}
	return nil
}

func (c *Catalogs) checkResources(file, id string, maps ...map[string]float64) error {
	for _, m := range maps {
		for res := range m {
			if !c.IsResource(res) {
				return fmt.Errorf("%s: %s: unknown resource %q", file, id, res)
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
