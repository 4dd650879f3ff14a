package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/lotas/tabkeeper/internal/types"
)

type recorder struct {
	calls []string
}

func (r *recorder) Sync(ws []types.ResourceWindow) error {
	r.calls = append(r.calls, fmt.Sprintf("sync %d", len(ws)))
	return nil
}

func (r *recorder) WindowOpened(w types.ResourceWindow) error {
	r.calls = append(r.calls, fmt.Sprintf("window-opened %d/%d", w.ID, len(w.Tabs)))
	return nil
}

func (r *recorder) WindowClosed(id types.ExternalID) error {
	r.calls = append(r.calls, fmt.Sprintf("window-closed %d", id))
	return nil
}

func (r *recorder) TabCreated(t types.ResourceTab) error {
	r.calls = append(r.calls, fmt.Sprintf("tab-created %d@%d", t.ID, t.WindowID))
	return nil
}

func (r *recorder) TabUpdated(t types.ResourceTab) error {
	r.calls = append(r.calls, fmt.Sprintf("tab-updated %d %s", t.ID, t.URL))
	return nil
}

func (r *recorder) TabMoved(id, windowID types.ExternalID, index int) error {
	r.calls = append(r.calls, fmt.Sprintf("tab-moved %d %d %d", id, windowID, index))
	return nil
}

func (r *recorder) TabRemoved(id types.ExternalID, closing bool) error {
	r.calls = append(r.calls, fmt.Sprintf("tab-removed %d %v", id, closing))
	return nil
}

func TestDispatch(t *testing.T) {
	raw := []string{
		`{"type":"snapshot","tabs":[{"id":1,"windowId":1},{"id":2,"windowId":2}]}`,
		`{"type":"window.created","window":{"id":3,"tabs":[{"id":30,"url":"https://a.example"}]}}`,
		`{"type":"tab.created","tab":{"id":31,"windowId":3,"index":1}}`,
		`{"type":"tab.updated","tab":{"id":31,"windowId":3,"url":"https://b.example"}}`,
		`{"type":"tab.moved","tabId":31,"windowId":3,"index":0}`,
		`{"type":"tab.removed","tabId":31,"windowId":3,"isWindowClosing":true}`,
		`{"type":"window.removed","windowId":3}`,
	}
	rec := &recorder{}
	for _, r := range raw {
		var msg IncomingMsg
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			t.Fatal(err)
		}
		if err := Dispatch(msg, rec); err != nil {
			t.Fatalf("Dispatch(%s): %v", r, err)
		}
	}

	want := []string{
		"sync 2",
		"window-opened 3/1",
		"tab-created 31@3",
		"tab-updated 31 https://b.example",
		"tab-moved 31 3 0",
		"tab-removed 31 true",
		"window-closed 3",
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %v\nwant %v", rec.calls, want)
	}
}

func TestDispatchUnhandled(t *testing.T) {
	ok := true
	err := Dispatch(IncomingMsg{ID: "cmd-1", OK: &ok}, &recorder{})
	if !errors.Is(err, ErrUnhandled) {
		t.Errorf("err = %v, want ErrUnhandled", err)
	}
}

func TestDispatchMalformed(t *testing.T) {
	err := Dispatch(IncomingMsg{Type: MsgTabCreated, Tab: json.RawMessage(`[`)}, &recorder{})
	if err == nil || errors.Is(err, ErrUnhandled) {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestOutgoingCommands(t *testing.T) {
	data, err := json.Marshal(OpenWindowCmd("cmd-1", []string{"https://a.example"}))
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]interface{}
	json.Unmarshal(data, &parsed)
	if parsed["action"] != "open-window" {
		t.Errorf("action = %v", parsed["action"])
	}
	if _, ok := parsed["windowId"]; ok {
		t.Error("windowId should be omitted when zero")
	}

	closeCmd := CloseTabsCmd("cmd-2", []types.ExternalID{4, 5})
	if !reflect.DeepEqual(closeCmd.TabIDs, []types.ExternalID{4, 5}) {
		t.Errorf("tab ids = %v", closeCmd.TabIDs)
	}
}
