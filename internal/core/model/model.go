// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Validate is applied at the API boundary; the core assumes valid input.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return &ValidationError{Field: "latitude", Reason: "must be in [-90,90]"}
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return &ValidationError{Field: "longitude", Reason: "must be in [-180,180]"}
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// RegionCode is a position in the catalog provider's code scheme:
// 2-digit region (province/metro) and 5-digit sub-region (district).
type RegionCode struct {
	Region        string `json:"region"`
	SubRegion     string `json:"sub_region"`
	RegionName    string `json:"region_name"`
	SubRegionName string `json:"sub_region_name"`
}

func (r RegionCode) String() string {
	return fmt.Sprintf("%s(%s) %s(%s)", r.RegionName, r.Region, r.SubRegionName, r.SubRegion)
}

// AdminArea holds the administrative properties of a geocoder feature.
type AdminArea struct {
	FullName string
	Name     string
	Code     string
}

type LoanStatus string

const (
	LoanAvailable   LoanStatus = "Y"
	LoanUnavailable LoanStatus = "N"
	LoanUnknown     LoanStatus = "unknown"
)

func ParseLoanStatus(s string) LoanStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Y":
		return LoanAvailable
	case "N":
		return LoanUnavailable
	default:
		return LoanUnknown
	}
}

// Library is a catalog search candidate. DistanceMeters is set by ranking,
// LoanAvailable by the availability check.
type Library struct {
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	Address        string     `json:"address"`
	Phone          string     `json:"phone"`
	Latitude       string     `json:"latitude"`
	Longitude      string     `json:"longitude"`
	DistanceMeters *float64   `json:"distance_meters,omitempty"`
	LoanAvailable  LoanStatus `json:"loan_available,omitempty"`
}

// Coordinate parses the provider's string coordinates.
func (l Library) Coordinate() (Coordinate, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(l.Latitude), 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return Coordinate{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(l.Longitude), 64)
	if err != nil || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return Coordinate{}, false
	}
	return Coordinate{Lat: lat, Lon: lon}, true
}

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
