package export

import (
	"encoding/json"
	"testing"
)

func TestJSON_Windows(t *testing.T) {
	result, err := JSON(sampleManager(t), "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed jsonExport
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, result)
	}
	if parsed.Profile != "default" {
		t.Errorf("profile = %q", parsed.Profile)
	}
	if len(parsed.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(parsed.Windows))
	}

	research := parsed.Windows[0]
	if research.Title != "Research" || !research.CustomTitle || !research.Kept || research.Open {
		t.Errorf("unexpected research window %+v", research)
	}
	if len(research.Subtypes) != 1 || research.Subtypes[0] != "saved" {
		t.Errorf("subtypes = %v", research.Subtypes)
	}
	if research.OrderedHash == "" {
		t.Error("expected ordered hash")
	}
	if len(research.Tabs) != 2 {
		t.Fatalf("expected 2 tabs, got %d", len(research.Tabs))
	}
	if research.Tabs[0].Domain != "go.dev" || research.Tabs[0].Bullet != "todo" {
		t.Errorf("tab 0 = %+v", research.Tabs[0])
	}
	if !research.Tabs[1].Pinned {
		t.Error("expected tab 1 pinned")
	}

	scratch := parsed.Windows[1]
	if scratch.Title != "Unsaved" || scratch.CustomTitle || scratch.Kept {
		t.Errorf("unexpected scratch window %+v", scratch)
	}
	if scratch.Tabs[0].Title != "https://notitle.com/page" {
		t.Errorf("expected URL fallback title, got %q", scratch.Tabs[0].Title)
	}
}

func TestExtractDomain(t *testing.T) {
	cases := map[string]string{
		"https://sub.example.com:8080/x": "sub.example.com",
		"about:blank":                    "about:blank",
		"not a url":                      "not a url",
	}
	for in, want := range cases {
		if got := extractDomain(in); got != want {
			t.Errorf("extractDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
