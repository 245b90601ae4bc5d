package valves

import (
	"errors"
	"testing"

	"github.com/chronolens/chronolens/internal/domain"
)

func TestSetFileDefaults_RejectsInvalidLayerKeepsPrevious(t *testing.T) {
	s := NewStoreWithLookup(noEnv)

	if err := s.SetFileDefaults(map[string]string{NameToolModel: "good-model"}); err != nil {
		t.Fatalf("SetFileDefaults() error = %v", err)
	}

	// A layer with a bad URL must be rejected wholesale.
	err := s.SetFileDefaults(map[string]string{
		NameToolModel: "other-model",
		NameIndexURL:  "not a url",
	})
	if !errors.Is(err, domain.ErrInvalidValves) {
		t.Fatalf("SetFileDefaults() error = %v, want ErrInvalidValves", err)
	}

	v, err := s.Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := v.ToolModel(); got != "good-model" {
		t.Errorf("ToolModel() = %q, want previous layer value %q", got, "good-model")
	}
}

func TestSetFileDefaults_RejectsUnknownName(t *testing.T) {
	s := NewStoreWithLookup(noEnv)

	err := s.SetFileDefaults(map[string]string{"MYSTERY": "1"})
	if !errors.Is(err, domain.ErrInvalidValves) {
		t.Fatalf("SetFileDefaults() error = %v, want ErrInvalidValves", err)
	}
}

func TestUpdateDefaults_Merges(t *testing.T) {
	s := NewStoreWithLookup(noEnv)

	if err := s.SetFileDefaults(map[string]string{
		NameToolModel:     "tool-a",
		NameResponseModel: "resp-a",
	}); err != nil {
		t.Fatalf("SetFileDefaults() error = %v", err)
	}

	if err := s.UpdateDefaults(map[string]string{NameResponseModel: "resp-b"}); err != nil {
		t.Fatalf("UpdateDefaults() error = %v", err)
	}

	v, err := s.Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := v.ToolModel(); got != "tool-a" {
		t.Errorf("ToolModel() = %q, want untouched %q", got, "tool-a")
	}
	if got := v.ResponseModel(); got != "resp-b" {
		t.Errorf("ResponseModel() = %q, want merged %q", got, "resp-b")
	}
}

func TestFileDefaults_ReturnsCopy(t *testing.T) {
	s := NewStoreWithLookup(noEnv)

	if err := s.SetFileDefaults(map[string]string{NameToolModel: "tool-a"}); err != nil {
		t.Fatalf("SetFileDefaults() error = %v", err)
	}

	got := s.FileDefaults()
	got[NameToolModel] = "mutated"

	v, err := s.Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if v.ToolModel() != "tool-a" {
		t.Errorf("ToolModel() = %q, layer mutated through returned copy", v.ToolModel())
	}
}
