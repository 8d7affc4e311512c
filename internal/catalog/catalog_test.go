package catalog

import "testing"

func TestCatalogShape(t *testing.T) {
	controls := Controls()
	if len(controls) != 18 {
		t.Fatalf("expected 18 controls, got %d", len(controls))
	}
	if n := len(Safeguards()); n != 153 {
		t.Fatalf("expected 153 safeguards, got %d", n)
	}
	if Version() != "8" {
		t.Fatalf("unexpected version %q", Version())
	}
}

func TestLookup(t *testing.T) {
	sg, ok := Lookup("1.1")
	if !ok {
		t.Fatalf("expected 1.1")
	}
	if sg.ControlID != "1" || sg.ControlTitle != "Inventory and Control of Enterprise Assets" {
		t.Fatalf("unexpected parent %+v", sg)
	}
	if _, ok := Lookup("99.1"); ok {
		t.Fatalf("unexpected hit for unknown id")
	}
}

func TestSearchMatchesIDTitleAndControlCaseInsensitive(t *testing.T) {
	byTitle := Search("dmarc", nil)
	if len(byTitle) != 1 || byTitle[0].ID != "9.5" {
		t.Fatalf("title match: %+v", byTitle)
	}
	byControl := Search("PENETRATION TESTING", nil)
	ids := map[string]bool{}
	for _, sg := range byControl {
		ids[sg.ID] = true
	}
	for _, want := range []string{"18.1", "18.2", "18.3", "18.4", "18.5", "16.13"} {
		if !ids[want] {
			t.Fatalf("expected %s in %v", want, ids)
		}
	}
	byID := Search("13.1", nil)
	if len(byID) < 2 || byID[0].ID != "13.1" || byID[1].ID != "13.10" {
		t.Fatalf("id match: %+v", byID)
	}
}

func TestSearchExcludesLinkedAndKeepsOrder(t *testing.T) {
	all := Search("", nil)
	if len(all) != 153 {
		t.Fatalf("empty query should match all, got %d", len(all))
	}
	res := Search("Data Recovery", []string{"11.2", "11.4"})
	var got []string
	for _, sg := range res {
		got = append(got, sg.ID)
	}
	want := []string{"11.1", "11.3", "11.5"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestControlsReturnsCopy(t *testing.T) {
	c := Controls()
	c[0].Safeguards[0].Title = "mutated"
	if sg, _ := Lookup("1.1"); sg.Title == "mutated" {
		t.Fatalf("catalog mutated through copy")
	}
	if Controls()[0].Safeguards[0].Title == "mutated" {
		t.Fatalf("controls mutated through copy")
	}
}
