package catalog

import (
	"context"
	"reflect"
	"testing"
)

func TestStaticNormalizesList(t *testing.T) {
	s := NewStatic([]string{"News", "chat", "NEWS", "", "trade", "Chat"})

	got, err := s.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	want := []string{"chat", "news", "trade"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Categories = %v, want %v", got, want)
	}
}

func TestStaticReturnsCopies(t *testing.T) {
	s := NewStatic([]string{"news", "chat"})

	first, _ := s.Categories(context.Background())
	first[0] = "mutated"

	second, _ := s.Categories(context.Background())
	if second[0] != "chat" {
		t.Fatalf("caller mutation leaked into provider: %v", second)
	}
}
