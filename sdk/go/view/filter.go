// Package view derives display collections from fully loaded entity lists:
// text filtering, fixed-size pagination and status badges. Nothing here
// talks to the server.
package view

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	cislinesdk "cisline/sdk/go"
)

// Page sizes used by the client.
const (
	DetailPageSize = 8
	ListPageSize   = 10
)

// Filter keeps the items for which any key contains query, ignoring case.
// A blank query keeps everything. The result never aliases items.
func Filter[T any](items []T, query string, keys func(T) []string) []T {
	q := strings.TrimSpace(query)
	out := make([]T, 0, len(items))
	if q == "" {
		return append(out, items...)
	}
	caser := cases.Fold()
	needle := caser.String(q)
	for _, it := range items {
		for _, k := range keys(it) {
			if strings.Contains(caser.String(k), needle) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// NameAndID is the usual filter key set: the display name and the id.
func NameAndID(name string, id int64) []string {
	return []string{name, strconv.FormatInt(id, 10)}
}

func OrganizationKeys(o cislinesdk.Organization) []string { return NameAndID(o.Name, o.ID) }
func TaskKeys(t cislinesdk.Task) []string                 { return NameAndID(t.Name, t.ID) }
func ArtifactKeys(a cislinesdk.Artifact) []string         { return NameAndID(a.Name, a.ID) }

// ProfileKeys also matches the user's email.
func ProfileKeys(p cislinesdk.Profile) []string {
	keys := NameAndID(p.Name, p.ID)
	if p.User != nil {
		keys = append(keys, p.User.Email)
	}
	return keys
}

// SafeguardKeys matches the dotted id and the title.
func SafeguardKeys(s cislinesdk.Safeguard) []string { return []string{s.ID, s.Title} }
