package tools

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ChamsBouzaiene/kestrel/internal/knowledge"
	"github.com/ChamsBouzaiene/kestrel/internal/sandbox"
)

func TestBuildRegistryMinimal(t *testing.T) {
	reg := BuildRegistry(Deps{})
	want := []string{"finish_scan", "think", "web_search"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestBuildRegistryFull(t *testing.T) {
	index, err := knowledge.Open(filepath.Join(t.TempDir(), "knowledge.bleve"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer index.Close()

	reg := BuildRegistry(Deps{
		Executor:  &sandbox.LocalExecutor{},
		Knowledge: index,
	})
	want := []string{"create_note", "finish_scan", "list_notes", "terminal_execute", "think", "web_search"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
