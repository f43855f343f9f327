package region

import (
	"strings"
	"testing"

	"github.com/mohammed-shakir/library-locator/internal/core/model"
)

func TestCodeFromAddress_MetroDistrict(t *testing.T) {
	got, ok := Default().CodeFromAddress("서울특별시 노원구")
	if !ok {
		t.Fatalf("expected match")
	}
	want := model.RegionCode{Region: "11", SubRegion: "11110", RegionName: "서울특별시", SubRegionName: "노원구"}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestCodeFromAddress_MultiWordDistrict(t *testing.T) {
	tbl := Default()

	got, ok := tbl.CodeFromAddress("경기도 수원시 장안구")
	if !ok || got.SubRegion != "31011" || got.SubRegionName != "수원시 장안구" {
		t.Fatalf("got %+v ok=%v want 31011", got, ok)
	}

	// extra whitespace is collapsed before lookup
	got, ok = tbl.CodeFromAddress("  경기도   성남시  분당구 ")
	if !ok || got.SubRegion != "31023" {
		t.Fatalf("got %+v ok=%v want 31023", got, ok)
	}

	// remainder unknown, first district token known
	got, ok = tbl.CodeFromAddress("경기도 용인시 없는구")
	if !ok || got.SubRegion != "31190" {
		t.Fatalf("got %+v ok=%v want 31190", got, ok)
	}
}

func TestCodeFromAddress_SingleTokenAndAliases(t *testing.T) {
	tbl := Default()

	got, ok := tbl.CodeFromAddress("세종특별자치시")
	if !ok || got.Region != "29" || got.SubRegion != "29010" {
		t.Fatalf("sejong: got %+v ok=%v", got, ok)
	}

	for _, addr := range []string{"강원도 춘천시", "강원특별자치도 춘천시"} {
		got, ok := tbl.CodeFromAddress(addr)
		if !ok || got.SubRegion != "32010" {
			t.Fatalf("%q: got %+v ok=%v", addr, got, ok)
		}
	}
	for _, addr := range []string{"전라북도 전주시 완산구", "전북특별자치도 전주시 완산구"} {
		got, ok := tbl.CodeFromAddress(addr)
		if !ok || got.SubRegion != "35011" {
			t.Fatalf("%q: got %+v ok=%v", addr, got, ok)
		}
	}
}

func TestCodeFromAddress_NoMatch(t *testing.T) {
	tbl := Default()
	cases := []string{
		"",
		"   ",
		"Atlantis 노원구",
		"서울특별시 없는구",
		"부산광역시 노원구",
	}
	for _, c := range cases {
		if got, ok := tbl.CodeFromAddress(c); ok {
			t.Fatalf("%q: unexpected match %+v", c, got)
		}
	}
}

func TestDistrictNamesAreScopedToProvince(t *testing.T) {
	tbl := Default()
	seoul, _ := tbl.CodeFromAddress("서울특별시 중구")
	busan, _ := tbl.CodeFromAddress("부산광역시 중구")
	if seoul.SubRegion != "11020" || busan.SubRegion != "21010" {
		t.Fatalf("seoul=%+v busan=%+v", seoul, busan)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		code model.RegionCode
		want bool
	}{
		{model.RegionCode{Region: "11", SubRegion: "11110"}, true},
		{model.RegionCode{Region: "1", SubRegion: "11110"}, false},
		{model.RegionCode{Region: "11", SubRegion: "1111"}, false},
		{model.RegionCode{Region: "11", SubRegion: "21110"}, false},
		{model.RegionCode{Region: "ab", SubRegion: "ab110"}, false},
		{model.RegionCode{Region: "11", SubRegion: "111100"}, false},
		{model.RegionCode{}, false},
	}
	for _, c := range cases {
		if got := Validate(c.code); got != c.want {
			t.Fatalf("Validate(%+v)=%v want %v", c.code, got, c.want)
		}
	}
}

func TestEveryDatasetCodeValidates(t *testing.T) {
	tbl := Default()
	for _, region := range tbl.Regions() {
		subs := tbl.SubRegions(region)
		if len(subs) == 0 {
			t.Fatalf("region %s has no districts", region)
		}
		for _, sub := range subs {
			rc := model.RegionCode{Region: region, SubRegion: sub}
			if !Validate(rc) || !strings.HasPrefix(sub, region) {
				t.Fatalf("invalid dataset code %+v", rc)
			}
		}
	}
	for name, region := range tbl.provinces {
		for district := range tbl.districts[region] {
			rc, ok := tbl.CodeFromAddress(name + " " + district)
			if !ok || !Validate(rc) {
				t.Fatalf("%s %s: got %+v ok=%v", name, district, rc, ok)
			}
		}
	}
}

func TestSubRegions_SortedAndDeduplicated(t *testing.T) {
	subs := Default().SubRegions("23")
	for i := 1; i < len(subs); i++ {
		if subs[i-1] >= subs[i] {
			t.Fatalf("not strictly sorted: %v", subs)
		}
	}
	if got := Default().SubRegions("99"); len(got) != 0 {
		t.Fatalf("unknown region: %v", got)
	}
}

func TestParse_RejectsBadCodes(t *testing.T) {
	bad := []string{
		`{"provinces":[]}`,
		`{"provinces":[{"code":"1","name":"x","districts":{}}]}`,
		`{"provinces":[{"code":"11","name":"x","districts":{"a":"21010"}}]}`,
		`{"provinces":[{"code":"11","name":"x","districts":{}},{"code":"11","name":"y","districts":{}}]}`,
		`not json`,
	}
	for _, b := range bad {
		if _, err := Parse([]byte(b)); err == nil {
			t.Fatalf("expected error for %s", b)
		}
	}
}
