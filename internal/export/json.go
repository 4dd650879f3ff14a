package export

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/types"
)

type jsonExport struct {
	Profile    string       `json:"profile"`
	ExportedAt time.Time    `json:"exported_at"`
	Windows    []jsonWindow `json:"windows"`
}

type jsonWindow struct {
	Title       string    `json:"title"`
	CustomTitle bool      `json:"custom_title"`
	Kept        bool      `json:"kept"`
	Open        bool      `json:"open"`
	Subtypes    []string  `json:"subtypes"`
	OrderedHash string    `json:"ordered_hash,omitempty"`
	Tabs        []jsonTab `json:"tabs"`
}

type jsonTab struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Domain  string `json:"domain"`
	Favicon string `json:"favicon,omitempty"`
	Bullet  string `json:"bullet,omitempty"`
	Pinned  bool   `json:"pinned,omitempty"`
	Open    bool   `json:"open"`
}

// JSON formats every window in tree order as a JSON document.
func JSON(mgr *lifecycle.Manager, profile string) (string, error) {
	view := mgr.Presenter()
	windows := mgr.Windows()
	out := jsonExport{
		Profile:    profile,
		ExportedAt: time.Now(),
		Windows:    make([]jsonWindow, 0, len(windows)),
	}

	for _, w := range windows {
		tabs := mgr.Tabs(w)
		jw := jsonWindow{
			Title:       view.WindowTitle(w),
			CustomTitle: w.RawTitle != nil,
			Kept:        w.Keep == types.KeepKept,
			Open:        w.IsOpen,
			Subtypes:    append([]string{}, w.Subtypes.Names()...),
			OrderedHash: w.OrderedHash(),
			Tabs:        make([]jsonTab, 0, len(tabs)),
		}
		for _, tab := range tabs {
			jw.Tabs = append(jw.Tabs, jsonTab{
				Title:   view.TabTitle(tab),
				URL:     tab.RawURL,
				Domain:  extractDomain(tab.RawURL),
				Favicon: tab.RawFaviconURL,
				Bullet:  tab.RawBullet,
				Pinned:  tab.Pinned,
				Open:    tab.IsOpen,
			})
		}
		out.Windows = append(out.Windows, jw)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Hostname()
}
