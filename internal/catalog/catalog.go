// Package catalog exposes the CIS Controls v8 reference taxonomy. The data is
// embedded and read-only; tasks link to safeguards by id.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed cis_controls_v8.yaml
var rawCatalog []byte

type Control struct {
	ID         string      `yaml:"id" json:"id"`
	Title      string      `yaml:"title" json:"title"`
	Safeguards []Safeguard `yaml:"safeguards" json:"safeguards"`
}

type Safeguard struct {
	ID                  string `yaml:"id" json:"id"`
	Title               string `yaml:"title" json:"title"`
	AssetType           string `yaml:"asset_type" json:"asset_type"`
	SecurityFunction    string `yaml:"function" json:"security_function"`
	ImplementationGroup int    `yaml:"ig" json:"implementation_group"`
	ControlID           string `yaml:"-" json:"control_id"`
	ControlTitle        string `yaml:"-" json:"control_title"`
}

type document struct {
	Version  string    `yaml:"version"`
	Controls []Control `yaml:"controls"`
}

type index struct {
	version  string
	controls []Control
	flat     []Safeguard
	byID     map[string]int
}

var (
	loadOnce sync.Once
	loaded   *index
	loadErr  error
)

func load() (*index, error) {
	loadOnce.Do(func() {
		loaded, loadErr = parse(rawCatalog)
	})
	return loaded, loadErr
}

func parse(data []byte) (*index, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	idx := &index{version: doc.Version, controls: doc.Controls, byID: map[string]int{}}
	for ci := range idx.controls {
		c := &idx.controls[ci]
		for si := range c.Safeguards {
			sg := &c.Safeguards[si]
			sg.ControlID = c.ID
			sg.ControlTitle = c.Title
			if _, dup := idx.byID[sg.ID]; dup {
				return nil, fmt.Errorf("duplicate safeguard id %s", sg.ID)
			}
			idx.byID[sg.ID] = len(idx.flat)
			idx.flat = append(idx.flat, *sg)
		}
	}
	return idx, nil
}

func mustLoad() *index {
	idx, err := load()
	if err != nil {
		panic(err)
	}
	return idx
}

// Version is the catalog release, "8".
func Version() string { return mustLoad().version }

// Controls returns a copy of the control hierarchy in catalog order.
func Controls() []Control {
	src := mustLoad().controls
	out := make([]Control, len(src))
	for i, c := range src {
		out[i] = c
		out[i].Safeguards = append([]Safeguard(nil), c.Safeguards...)
	}
	return out
}

// Safeguards returns every safeguard flattened in catalog order.
func Safeguards() []Safeguard {
	return append([]Safeguard(nil), mustLoad().flat...)
}

// Lookup finds a safeguard by id such as "1.1".
func Lookup(id string) (Safeguard, bool) {
	idx := mustLoad()
	i, ok := idx.byID[strings.TrimSpace(id)]
	if !ok {
		return Safeguard{}, false
	}
	return idx.flat[i], true
}

// Search returns safeguards whose id, title or parent control title contains
// query, ignoring case, minus the ids in exclude. Results keep catalog order.
// An empty query matches everything.
func Search(query string, exclude []string) []Safeguard {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	needle := fold(strings.TrimSpace(query))
	res := []Safeguard{}
	for _, sg := range mustLoad().flat {
		if _, ok := skip[sg.ID]; ok {
			continue
		}
		if needle == "" || matches(sg, needle) {
			res = append(res, sg)
		}
	}
	return res
}

func matches(sg Safeguard, needle string) bool {
	for _, hay := range []string{sg.ID, sg.Title, sg.ControlTitle} {
		if strings.Contains(fold(hay), needle) {
			return true
		}
	}
	return false
}

// fold builds a fresh Caser per call; Casers are not safe for concurrent use.
func fold(s string) string { return cases.Fold().String(s) }
