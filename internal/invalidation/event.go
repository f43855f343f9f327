// Package invalidation defines holdings-change events that evict cached
// catalog search results.
package invalidation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mohammed-shakir/library-locator/internal/cache/keys"
	"github.com/mohammed-shakir/library-locator/internal/core/model"
	"github.com/mohammed-shakir/library-locator/internal/region"
)

// Event reports that the holdings of a book changed somewhere in a region.
// SubRegion narrows it to one district; LibCode is informational.
type Event struct {
	Version   int       `json:"version"`
	Op        string    `json:"op"`
	ISBN      string    `json:"isbn"`
	Region    string    `json:"region"`
	SubRegion string    `json:"sub_region,omitempty"`
	LibCode   string    `json:"lib_code,omitempty"`
	TS        time.Time `json:"ts"`
	Source    string    `json:"source,omitempty"`
}

var regionPattern = regexp.MustCompile(`^\d{2}$`)

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return errors.New("op must be insert|update|delete")
	}
	if n := len(keys.NormalizeISBN(e.ISBN)); n != 10 && n != 13 {
		return fmt.Errorf("isbn must have 10 or 13 digits (got %q)", e.ISBN)
	}
	if !regionPattern.MatchString(e.Region) {
		return fmt.Errorf("region must be 2 digits (got %q)", e.Region)
	}
	if e.SubRegion != "" && !region.Validate(model.RegionCode{Region: e.Region, SubRegion: e.SubRegion}) {
		return fmt.Errorf("sub_region %q is not a district of region %q", e.SubRegion, e.Region)
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	return nil
}

// SubRegionLister enumerates district codes of a region.
type SubRegionLister interface {
	SubRegions(region string) []string
}

// Keys lists the cache entries an event makes stale: the region-wide search
// plus the named district, or every district of the region when none is
// named.
func (e Event) Keys(districts SubRegionLister) []string {
	isbn := strings.TrimSpace(e.ISBN)
	out := []string{keys.SearchKey(isbn, e.Region, "")}
	if e.SubRegion != "" {
		return append(out, keys.SearchKey(isbn, e.Region, e.SubRegion))
	}
	for _, sub := range districts.SubRegions(e.Region) {
		out = append(out, keys.SearchKey(isbn, e.Region, sub))
	}
	return out
}
