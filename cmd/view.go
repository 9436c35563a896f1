package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/streetpass/internal/cec"
)

// filterView is the printable form of a module filter.
type filterView struct {
	Source   string            `json:"source,omitempty" yaml:"source,omitempty"`
	Hex      string            `json:"hex" yaml:"hex"`
	Key      string            `json:"key,omitempty" yaml:"key,omitempty"`
	Size     int               `json:"size,omitempty" yaml:"size,omitempty"`
	RawBytes *rawBytesListView `json:"raw_bytes,omitempty" yaml:"raw_bytes,omitempty"`
	Titles   *titleListView    `json:"titles,omitempty" yaml:"titles,omitempty"`
	Matches  *bool             `json:"matches,omitempty" yaml:"matches,omitempty"`
	Error    string            `json:"error,omitempty" yaml:"error,omitempty"`

	text   string
	filter *cec.ModuleFilter
}

type rawBytesListView struct {
	Flags   uint8          `json:"flags" yaml:"flags"`
	Filters []rawBytesView `json:"filters" yaml:"filters"`
}

type rawBytesView struct {
	Pattern   string `json:"pattern" yaml:"pattern"`
	CmpLength int    `json:"cmp_length" yaml:"cmp_length"`
}

type titleListView struct {
	Flags   uint8       `json:"flags" yaml:"flags"`
	Filters []titleView `json:"filters" yaml:"filters"`
}

type titleView struct {
	TitleID  string    `json:"title_id" yaml:"title_id"`
	SendMode string    `json:"send_mode" yaml:"send_mode"`
	MVEs     []mveView `json:"mves,omitempty" yaml:"mves,omitempty"`
}

type mveView struct {
	Mask        string `json:"mask" yaml:"mask"`
	Value       string `json:"value" yaml:"value"`
	Expectation string `json:"expectation" yaml:"expectation"`
}

func newFilterView(data []byte, f *cec.ModuleFilter) filterView {
	v := filterView{
		Hex:    hex.EncodeToString(data),
		Key:    f.Key().String(),
		Size:   f.ByteSize(),
		text:   f.String(),
		filter: f,
	}
	if raw := f.RawBytes(); raw.Count() > 0 {
		lv := &rawBytesListView{Flags: raw.Flags()}
		for _, r := range raw.Filters() {
			lv.Filters = append(lv.Filters, rawBytesView{
				Pattern:   hex.EncodeToString(r.Pattern()),
				CmpLength: r.CmpLength(),
			})
		}
		v.RawBytes = lv
	}
	if titles := f.Titles(); titles.Count() > 0 {
		lv := &titleListView{Flags: titles.Flags()}
		for _, t := range titles.Filters() {
			tv := titleView{TitleID: fmt.Sprintf("0x%08x", t.TitleID()), SendMode: t.SendMode().String()}
			for _, m := range t.MVEs() {
				tv.MVEs = append(tv.MVEs, mveView{
					Mask:        fmt.Sprintf("0x%02x", m.Mask),
					Value:       fmt.Sprintf("0x%02x", m.Value),
					Expectation: fmt.Sprintf("0x%02x", m.Expectation),
				})
			}
			lv.Filters = append(lv.Filters, tv)
		}
		v.Titles = lv
	}
	return v
}

func errorView(data []byte, err error) filterView {
	return filterView{Hex: hex.EncodeToString(data), Error: err.Error()}
}

// render writes views as text, json or yaml.
func render(w io.Writer, format string, views []filterView) error {
	switch format {
	case "json":
		return writeJSON(w, views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		for i, v := range views {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if v.Source != "" {
				fmt.Fprintf(w, "from %s\n", v.Source)
			}
			if v.Error != "" {
				fmt.Fprintf(w, "%s: %s\n", v.Hex, v.Error)
				continue
			}
			fmt.Fprintln(w, strings.TrimRight(v.text, "\n"))
			if v.Matches != nil {
				fmt.Fprintf(w, "matches: %t\n", *v.Matches)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (must be text/json/yaml)", format)
	}
}
