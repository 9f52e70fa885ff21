package context_test

import (
	"testing"
	"time"

	twctx "github.com/easyops/twinmcp/pkg/context"
	"github.com/easyops/twinmcp/pkg/core/token"
)

func TestNewItem_Defaults(t *testing.T) {
	item := twctx.NewItem(twctx.ItemTypeDocumentation, "hello world")

	if item.ID == "" {
		t.Error("ID should be generated")
	}
	if item.Tokens != 3 {
		t.Errorf("Tokens = %d, want 3", item.Tokens)
	}
	if item.FinalScore != nil {
		t.Error("FinalScore should be unset")
	}
	if _, ok := item.Timestamp(); ok {
		t.Error("new item should have no timestamp")
	}
}

func TestItemType_Affinity(t *testing.T) {
	tests := []struct {
		itemType twctx.ItemType
		want     float64
	}{
		{twctx.ItemTypeDocumentation, 0.9},
		{twctx.ItemTypeExample, 0.85},
		{twctx.ItemTypeCode, 0.8},
		{twctx.ItemTypeHistory, 0.7},
		{"unknown", 0.5},
	}

	for _, tt := range tests {
		if got := tt.itemType.Affinity(); got != tt.want {
			t.Errorf("%s.Affinity() = %v, want %v", tt.itemType, got, tt.want)
		}
	}
}

func TestItem_Timestamp(t *testing.T) {
	ref := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		want  time.Time
		ok    bool
	}{
		{"time", ref, ref, true},
		{"rfc3339", ref.Format(time.RFC3339), ref, true},
		{"unix int64", ref.Unix(), ref, true},
		{"unix string", "1709294400", ref, true},
		{"zero time", time.Time{}, time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
		{"unsupported", []string{"x"}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := twctx.NewItem(twctx.ItemTypeHistory, "x",
				twctx.WithMetadata(map[string]any{twctx.MetaTimestamp: tt.value}))
			got, ok := item.Timestamp()
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Timestamp() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItem_Clone(t *testing.T) {
	score := 0.5
	item := twctx.NewItem(twctx.ItemTypeCode, "fmt.Println()",
		twctx.WithMetadata(map[string]any{"lang": "go"}))
	item.FinalScore = &score

	clone := item.Clone()
	clone.SetMetadata("lang", "rust")
	*clone.FinalScore = 0.9

	if item.Metadata["lang"] != "go" {
		t.Error("clone metadata should be independent")
	}
	if *item.FinalScore != 0.5 {
		t.Error("clone score should be independent")
	}
}

func TestRender_SkipsEmptyItems(t *testing.T) {
	items := []*twctx.Item{
		twctx.NewItem(twctx.ItemTypeCode, ""),
		twctx.NewItem(twctx.ItemTypeDocumentation, "first"),
		twctx.NewItem(twctx.ItemTypeDocumentation, ""),
		twctx.NewItem(twctx.ItemTypeDocumentation, "second"),
		twctx.NewItem("custom", ""),
	}

	want := "[Documentation]\nfirst\n\nsecond"
	if got := twctx.Render(items); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}

	assembled := twctx.Assemble(items)
	if assembled.Tokens != token.Estimate(want) || assembled.Metadata.ItemCount != 5 {
		t.Errorf("Assemble() = %d tokens, %d items", assembled.Tokens, assembled.Metadata.ItemCount)
	}
}
