// Package region maps geocoder administrative names onto the catalog
// provider's numeric region/sub-region code scheme.
package region

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/mohammed-shakir/library-locator/internal/core/model"
)

//go:embed data/regions.json
var regionsJSON []byte

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type dataset struct {
	Version   string     `json:"version"`
	Provinces []province `json:"provinces"`
}

type province struct {
	Code      string            `json:"code"`
	Name      string            `json:"name"`
	Aliases   []string          `json:"aliases"`
	Districts map[string]string `json:"districts"`
}

// Table is an immutable view over the province and district code maps.
// The two maps are independent: province name -> region code, and
// region code -> district name -> sub-region code.
type Table struct {
	version   string
	provinces map[string]string
	names     map[string]string
	districts map[string]map[string]string
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the table built from the embedded dataset.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(regionsJSON)
		if err != nil {
			panic(fmt.Sprintf("region: embedded dataset: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Parse builds a table from a JSON dataset and rejects codes that would
// not validate.
func Parse(b []byte) (*Table, error) {
	var ds dataset
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if len(ds.Provinces) == 0 {
		return nil, errors.New("dataset has no provinces")
	}

	t := &Table{
		version:   ds.Version,
		provinces: make(map[string]string),
		names:     make(map[string]string),
		districts: make(map[string]map[string]string),
	}
	for _, p := range ds.Provinces {
		if !regionPattern.MatchString(p.Code) {
			return nil, fmt.Errorf("province %q: bad code %q", p.Name, p.Code)
		}
		if _, dup := t.districts[p.Code]; dup {
			return nil, fmt.Errorf("province code %q listed twice", p.Code)
		}
		for _, n := range append([]string{p.Name}, p.Aliases...) {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			t.provinces[n] = p.Code
		}
		t.names[p.Code] = p.Name

		dm := make(map[string]string, len(p.Districts))
		for name, code := range p.Districts {
			rc := model.RegionCode{Region: p.Code, SubRegion: code}
			if !Validate(rc) {
				return nil, fmt.Errorf("district %q %q: bad code %q", p.Name, name, code)
			}
			dm[normalize(name)] = code
		}
		t.districts[p.Code] = dm
	}
	return t, nil
}

func (t *Table) Version() string { return t.version }

// ProvinceCode looks up the 2-digit code for a province or metro name.
func (t *Table) ProvinceCode(name string) (string, bool) {
	c, ok := t.provinces[strings.TrimSpace(name)]
	return c, ok
}

// DistrictCode looks up a district within one province.
func (t *Table) DistrictCode(region, name string) (string, bool) {
	ds, ok := t.districts[region]
	if !ok {
		return "", false
	}
	c, ok := ds[normalize(name)]
	return c, ok
}

// CodeFromAddress converts a full administrative address such as
// "서울특별시 노원구" or "경기도 수원시 장안구". Token 0 is the province;
// the district key is the remainder of the address, or token 1 alone when
// the remainder is not a key. A single-token address uses the province
// name as the district key.
func (t *Table) CodeFromAddress(full string) (model.RegionCode, bool) {
	tokens := strings.Fields(full)
	if len(tokens) == 0 {
		return model.RegionCode{}, false
	}

	region, ok := t.ProvinceCode(tokens[0])
	if !ok {
		return model.RegionCode{}, false
	}

	candidates := []string{tokens[0]}
	if len(tokens) > 1 {
		candidates = []string{strings.Join(tokens[1:], " "), tokens[1]}
	}
	for _, name := range candidates {
		if sub, ok := t.DistrictCode(region, name); ok {
			return model.RegionCode{
				Region:        region,
				SubRegion:     sub,
				RegionName:    tokens[0],
				SubRegionName: name,
			}, true
		}
	}
	return model.RegionCode{}, false
}

// SubRegions lists every sub-region code of a region, sorted and deduplicated.
func (t *Table) SubRegions(region string) []string {
	ds := t.districts[region]
	seen := make(map[string]struct{}, len(ds))
	out := make([]string, 0, len(ds))
	for _, c := range ds {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Regions lists every region code, sorted.
func (t *Table) Regions() []string {
	out := make([]string, 0, len(t.names))
	for c := range t.names {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

var (
	regionPattern    = regexp.MustCompile(`^\d{2}$`)
	subRegionPattern = regexp.MustCompile(`^\d{5}$`)
)

// Validate reports whether a code is well formed: 2-digit region, 5-digit
// sub-region, and the sub-region prefixed by the region.
func Validate(c model.RegionCode) bool {
	return regionPattern.MatchString(c.Region) &&
		subRegionPattern.MatchString(c.SubRegion) &&
		strings.HasPrefix(c.SubRegion, c.Region)
}

func normalize(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
