package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cislinesdk "cisline/sdk/go"
	"cisline/sdk/go/view"
)

var nowFunc = time.Now

// apiClient builds an SDK client from the persistent flags.
func apiClient() *cislinesdk.Client {
	c := cislinesdk.New(viper.GetString("server"))
	c.BearerToken = viper.GetString("token")
	c.ActorID = viper.GetString("actor-id")
	return c
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printJSONOr prints v as JSON under --json and calls render otherwise.
func printJSONOr(v any, render func()) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	render()
	return nil
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(header))
	return tw
}

// listFlags are the client-side filter and page flags every list command takes.
type listFlags struct {
	query string
	page  int
}

func (f *listFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "filter by name or id")
	cmd.Flags().IntVar(&f.page, "page", 1, "page number")
}

// paginate filters and pages items the way the web client does and returns
// the visible page plus a footer line.
func paginate[T any](items []T, f listFlags, size int, keys func(T) []string) ([]T, string) {
	p := view.NewPager(size, keys)
	p.SetItems(items)
	p.SetQuery(f.query)
	p.SetPage(f.page)
	if p.Pages() == 0 {
		return p.Items(), "no matching items"
	}
	footer := fmt.Sprintf("page %d/%d, %d matching", p.Page(), p.Pages(), p.Total())
	return p.Items(), footer
}

// ago renders an RFC 3339 timestamp relative to now.
func ago(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func badge(b view.Badge) string {
	switch b.Tone {
	case view.ToneDanger:
		return "!! " + b.Label
	case view.ToneWarning:
		return "! " + b.Label
	}
	return b.Label
}

func idList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// optionalString returns nil unless the flag was set, so PATCH bodies only
// carry what the user passed.
func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
