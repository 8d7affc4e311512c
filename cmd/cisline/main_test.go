package main

import (
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"

	cislinesdk "cisline/sdk/go"
	"cisline/sdk/go/view"
)

func TestSetEnvValueKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := setEnvValue(path, "CISLINE_ADDR", "127.0.0.1:9090"); err != nil {
		t.Fatal(err)
	}
	if err := setEnvValue(path, "CISLINE_TOKEN", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := setEnvValue(path, "CISLINE_TOKEN", "def"); err != nil {
		t.Fatal(err)
	}
	env, err := godotenv.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if env["CISLINE_ADDR"] != "127.0.0.1:9090" || env["CISLINE_TOKEN"] != "def" || len(env) != 2 {
		t.Fatalf("unexpected env %v", env)
	}
}

func TestPaginateClampsPageAndFilters(t *testing.T) {
	var orgs []cislinesdk.Organization
	for i := int64(1); i <= 25; i++ {
		orgs = append(orgs, cislinesdk.Organization{ID: i, Name: "Org"})
	}
	page, footer := paginate(orgs, listFlags{page: 9}, view.ListPageSize, view.OrganizationKeys)
	if len(page) != 5 || page[0].ID != 21 {
		t.Fatalf("expected last page, got %d items", len(page))
	}
	if footer != "page 3/3, 25 matching" {
		t.Fatalf("footer %q", footer)
	}
	page, _ = paginate(orgs, listFlags{query: "2", page: 2}, view.ListPageSize, view.OrganizationKeys)
	// ids 2, 12, 20-25 match: eight items fit on page 1
	if len(page) != 8 {
		t.Fatalf("expected 8 matches, got %d", len(page))
	}
	page, footer = paginate(orgs, listFlags{query: "acme", page: 1}, view.ListPageSize, view.OrganizationKeys)
	if len(page) != 0 || footer != "no matching items" {
		t.Fatalf("empty result: %d items, footer %q", len(page), footer)
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID(" 42 "); err != nil || id != 42 {
		t.Fatalf("parseID: %d %v", id, err)
	}
	for _, bad := range []string{"", "0", "-3", "x"} {
		if _, err := parseID(bad); err == nil {
			t.Fatalf("parseID(%q) accepted", bad)
		}
	}
}
