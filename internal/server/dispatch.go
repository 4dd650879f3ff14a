package server

import (
	"errors"
	"fmt"

	"github.com/lotas/tabkeeper/internal/types"
)

// Handler receives live resource events.
type Handler interface {
	Sync(windows []types.ResourceWindow) error
	WindowOpened(w types.ResourceWindow) error
	WindowClosed(id types.ExternalID) error
	TabCreated(t types.ResourceTab) error
	TabUpdated(t types.ResourceTab) error
	TabMoved(id, windowID types.ExternalID, index int) error
	TabRemoved(id types.ExternalID, windowClosing bool) error
}

// Message types sent by the extension.
const (
	MsgSnapshot      = "snapshot"
	MsgWindowCreated = "window.created"
	MsgWindowRemoved = "window.removed"
	MsgTabCreated    = "tab.created"
	MsgTabUpdated    = "tab.updated"
	MsgTabMoved      = "tab.moved"
	MsgTabRemoved    = "tab.removed"
)

// ErrUnhandled is returned by Dispatch for messages that are not resource
// events, such as command responses.
var ErrUnhandled = errors.New("not a resource event")

// Dispatch decodes msg and calls the matching Handler method.
func Dispatch(msg IncomingMsg, h Handler) error {
	switch msg.Type {
	case MsgSnapshot:
		windows, err := ParseSnapshot(msg)
		if err != nil {
			return err
		}
		return h.Sync(windows)
	case MsgWindowCreated:
		w, err := ParseWindow(msg.Window)
		if err != nil {
			return fmt.Errorf("parse window: %w", err)
		}
		return h.WindowOpened(w)
	case MsgWindowRemoved:
		return h.WindowClosed(msg.WindowID)
	case MsgTabCreated, MsgTabUpdated:
		t, err := ParseTab(msg.Tab)
		if err != nil {
			return fmt.Errorf("parse tab: %w", err)
		}
		if msg.Type == MsgTabCreated {
			return h.TabCreated(t)
		}
		return h.TabUpdated(t)
	case MsgTabMoved:
		return h.TabMoved(msg.TabID, msg.WindowID, msg.Index)
	case MsgTabRemoved:
		return h.TabRemoved(msg.TabID, msg.IsWindowClosing)
	}
	return ErrUnhandled
}

// OpenWindowCmd builds the command asking the extension to open a window
// with the given URLs.
func OpenWindowCmd(id string, urls []string) OutgoingMsg {
	tabs := make([]TabToOpen, 0, len(urls))
	for _, u := range urls {
		tabs = append(tabs, TabToOpen{URL: u})
	}
	return OutgoingMsg{ID: id, Action: "open-window", Tabs: tabs}
}

// FocusWindowCmd asks the extension to raise a live window.
func FocusWindowCmd(id string, windowID types.ExternalID) OutgoingMsg {
	return OutgoingMsg{ID: id, Action: "focus-window", WindowID: windowID}
}

// CloseTabsCmd asks the extension to close live tabs.
func CloseTabsCmd(id string, tabIDs []types.ExternalID) OutgoingMsg {
	return OutgoingMsg{ID: id, Action: "close", TabIDs: tabIDs}
}
