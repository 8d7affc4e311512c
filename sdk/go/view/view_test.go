package view

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cislinesdk "cisline/sdk/go"
)

func orgs(n int) []cislinesdk.Organization {
	out := make([]cislinesdk.Organization, n)
	for i := range out {
		out[i] = cislinesdk.Organization{ID: int64(i + 1), Name: fmt.Sprintf("Org %c", 'A'+rune(i%26))}
	}
	return out
}

func TestFilterMatchesNameAndIDIgnoringCase(t *testing.T) {
	items := []cislinesdk.Organization{{ID: 1, Name: "Acme"}, {ID: 12, Name: "Globex"}, {ID: 3, Name: "STRASSE"}}
	assert.Len(t, Filter(items, "", OrganizationKeys), 3)
	assert.Equal(t, []cislinesdk.Organization{items[0]}, Filter(items, "aCm", OrganizationKeys))
	assert.Equal(t, []cislinesdk.Organization{items[0], items[1]}, Filter(items, "1", OrganizationKeys))
	assert.Equal(t, []cislinesdk.Organization{items[2]}, Filter(items, "straße", OrganizationKeys))
	assert.Empty(t, Filter(items, "zzz", OrganizationKeys))
}

func TestProfileKeysIncludeEmail(t *testing.T) {
	p := cislinesdk.Profile{ID: 4, Name: "Ann", User: &cislinesdk.User{Email: "ann@example.com"}}
	assert.Len(t, Filter([]cislinesdk.Profile{p}, "EXAMPLE", ProfileKeys), 1)
}

func TestPaginationReconstructsFilteredCollection(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 9, 23, 40} {
		for _, size := range []int{DetailPageSize, ListPageSize} {
			items := Filter(orgs(n), "org", OrganizationKeys)
			pages := PageCount(len(items), size)
			assert.Equal(t, (n+size-1)/size, pages)
			var union []cislinesdk.Organization
			for p := 1; p <= pages; p++ {
				chunk := Paginate(items, p, size)
				assert.LessOrEqual(t, len(chunk), size)
				union = append(union, chunk...)
			}
			assert.Equal(t, len(items), len(union), "n=%d size=%d", n, size)
			if n > 0 {
				assert.Equal(t, items, union)
			}
			assert.Empty(t, Paginate(items, pages+1, size))
		}
	}
}

func TestPageCountOfEmptyCollectionIsZero(t *testing.T) {
	assert.Equal(t, 0, PageCount(0, ListPageSize))
	assert.Equal(t, 0, PageCount(0, 0))
	assert.Equal(t, 1, PageCount(1, DetailPageSize))
	assert.Equal(t, 1, PageCount(DetailPageSize, DetailPageSize))
	assert.Equal(t, 2, PageCount(DetailPageSize+1, DetailPageSize))

	p := NewPager(ListPageSize, OrganizationKeys)
	p.SetItems(orgs(3))
	p.SetQuery("no such org")
	assert.Equal(t, 0, p.Pages())
	assert.Equal(t, 0, p.Total())
	assert.Equal(t, 1, p.Page())
	assert.Empty(t, p.Items())
}

func TestPagerQueryResetsToFirstPage(t *testing.T) {
	p := NewPager(ListPageSize, OrganizationKeys)
	p.SetItems(orgs(35))
	require.Equal(t, 4, p.Pages())
	p.SetPage(3)
	assert.Equal(t, 3, p.Page())

	p.SetQuery("org")
	assert.Equal(t, 1, p.Page())
	p.SetPage(4)
	p.SetQuery("org")
	assert.Equal(t, 1, p.Page(), "same query still resets")

	p.SetQuery("Org B")
	assert.Equal(t, 2, p.Total())
	assert.Equal(t, 1, p.Pages())
}

func TestPagerSetItemsClampsPage(t *testing.T) {
	p := NewPager(DetailPageSize, TaskKeys)
	tasks := make([]cislinesdk.Task, 20)
	for i := range tasks {
		tasks[i] = cislinesdk.Task{ID: int64(i + 1), Name: "t"}
	}
	p.SetItems(tasks)
	p.SetPage(3)
	assert.Len(t, p.Items(), 4)

	p.SetItems(tasks[:10])
	assert.Equal(t, 2, p.Page())
	assert.Len(t, p.Items(), 2)

	p.SetItems(nil)
	assert.Equal(t, 0, p.Pages())
	assert.Equal(t, 1, p.Page())
	assert.Empty(t, p.Items())

	p.SetPage(99)
	assert.Equal(t, 1, p.Page())
}

func TestDateWindow(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	s := cislinesdk.String
	assert.Equal(t, Unscheduled, DateWindow(nil, nil, now))
	assert.Equal(t, Unscheduled, DateWindow(s(""), s("garbage"), now))
	assert.Equal(t, Upcoming, DateWindow(s("2024-03-11"), nil, now))
	assert.Equal(t, Active, DateWindow(s("2024-03-01"), s("2024-03-10"), now), "date-only end covers the day")
	assert.Equal(t, Overdue, DateWindow(nil, s("2024-03-10T11:59:59Z"), now))
	assert.Equal(t, Active, DateWindow(s("2024-03-10T12:00:00Z"), nil, now))
	assert.Equal(t, ToneDanger, WindowBadge(Overdue).Tone)
}

func TestBadges(t *testing.T) {
	assert.Equal(t, Badge{"Completed", ToneSuccess}, TaskStatusBadge("COMPLETED"))
	assert.Equal(t, Badge{"In review", ToneNeutral}, TaskStatusBadge("IN_REVIEW"))
	assert.Equal(t, ToneDanger, ImportanceBadge("HIGH").Tone)
	assert.Equal(t, "Unknown", ImportanceBadge("").Label)
}
