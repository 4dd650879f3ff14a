package server

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lotas/tabkeeper/internal/types"
)

type wireTab struct {
	ID         int    `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	WindowID   int    `json:"windowId"`
	Index      int    `json:"index"`
	FavIconURL string `json:"favIconUrl"`
	Pinned     bool   `json:"pinned"`
}

type wireWindow struct {
	ID   int       `json:"id"`
	Tabs []wireTab `json:"tabs"`
}

func (wt wireTab) resource() types.ResourceTab {
	return types.ResourceTab{
		ID:         types.ExternalID(wt.ID),
		WindowID:   types.ExternalID(wt.WindowID),
		Index:      wt.Index,
		URL:        wt.URL,
		Title:      wt.Title,
		FavIconURL: wt.FavIconURL,
		Pinned:     wt.Pinned,
	}
}

func (ww wireWindow) resource() types.ResourceWindow {
	tabs := make([]wireTab, len(ww.Tabs))
	copy(tabs, ww.Tabs)
	sort.SliceStable(tabs, func(i, j int) bool { return tabs[i].Index < tabs[j].Index })

	w := types.ResourceWindow{ID: types.ExternalID(ww.ID)}
	for _, wt := range tabs {
		rt := wt.resource()
		rt.WindowID = w.ID
		w.Tabs = append(w.Tabs, rt)
	}
	return w
}

// ParseSnapshot converts a "snapshot" message into the full list of live
// windows. The extension sends either a "windows" list or a flat "tabs" list,
// which is grouped by window id in order of first appearance.
func ParseSnapshot(msg IncomingMsg) ([]types.ResourceWindow, error) {
	if len(msg.Windows) > 0 {
		var wws []wireWindow
		if err := json.Unmarshal(msg.Windows, &wws); err != nil {
			return nil, fmt.Errorf("parse windows: %w", err)
		}
		out := make([]types.ResourceWindow, 0, len(wws))
		for _, ww := range wws {
			out = append(out, ww.resource())
		}
		return out, nil
	}

	var tabs []wireTab
	if len(msg.Tabs) > 0 {
		if err := json.Unmarshal(msg.Tabs, &tabs); err != nil {
			return nil, fmt.Errorf("parse tabs: %w", err)
		}
	}
	byWindow := make(map[int]*wireWindow)
	var order []int
	for _, wt := range tabs {
		ww, ok := byWindow[wt.WindowID]
		if !ok {
			ww = &wireWindow{ID: wt.WindowID}
			byWindow[wt.WindowID] = ww
			order = append(order, wt.WindowID)
		}
		ww.Tabs = append(ww.Tabs, wt)
	}
	out := make([]types.ResourceWindow, 0, len(order))
	for _, id := range order {
		out = append(out, byWindow[id].resource())
	}
	return out, nil
}

// ParseWindow converts a raw JSON window into a ResourceWindow.
func ParseWindow(raw json.RawMessage) (types.ResourceWindow, error) {
	var ww wireWindow
	if err := json.Unmarshal(raw, &ww); err != nil {
		return types.ResourceWindow{}, err
	}
	return ww.resource(), nil
}

// ParseTab converts a raw JSON tab into a ResourceTab.
func ParseTab(raw json.RawMessage) (types.ResourceTab, error) {
	var wt wireTab
	if err := json.Unmarshal(raw, &wt); err != nil {
		return types.ResourceTab{}, err
	}
	return wt.resource(), nil
}
