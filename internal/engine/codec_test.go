package engine

import (
	"testing"

	"github.com/RainBowCreation/LangCategory/internal/domain"
)

func TestEncodePolicy(t *testing.T) {
	cases := []struct {
		name   string
		policy *domain.Policy
		want   string
	}{
		{"all empty", domain.NewPolicy(domain.ModeAll), "ALL|"},
		{"none empty", domain.NewPolicy(domain.ModeNone), "NONE|"},
		{"only sorted", domain.NewPolicy(domain.ModeOnly, "news", "chat"), "ONLY|chat,news"},
		{"except single", domain.NewPolicy(domain.ModeExcept, "Spam"), "EXCEPT|spam"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EncodePolicy(tc.policy); got != tc.want {
				t.Fatalf("EncodePolicy = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodePolicy(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want *domain.Policy
	}{
		{"plain", "ONLY|chat,news", domain.NewPolicy(domain.ModeOnly, "chat", "news")},
		{"empty tail", "NONE|", domain.NewPolicy(domain.ModeNone)},
		{"no pipe at all", "ALL", domain.NewPolicy(domain.ModeAll)},
		{"empty segments skipped", "EXCEPT|news,,chat,", domain.NewPolicy(domain.ModeExcept, "news", "chat")},
		{"categories lowercased", "ONLY|NeWs", domain.NewPolicy(domain.ModeOnly, "news")},
		// Форма не нормализуется при чтении: что записано, то и читается
		{"only with empty set stays only", "ONLY|", domain.NewPolicy(domain.ModeOnly)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodePolicy(tc.raw)
			if err != nil {
				t.Fatalf("DecodePolicy(%q): %v", tc.raw, err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("DecodePolicy(%q) = %v %v, want %v %v", tc.raw, got.Mode, got.Categories(), tc.want.Mode, tc.want.Categories())
			}
		})
	}
}

func TestDecodePolicyRejectsBadMode(t *testing.T) {
	for _, raw := range []string{"", "|news", "BOGUS|x,y", "all|news", "Only|chat"} {
		if _, err := DecodePolicy(raw); err == nil {
			t.Fatalf("DecodePolicy(%q) accepted malformed record", raw)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	policies := []*domain.Policy{
		domain.NewPolicy(domain.ModeAll),
		domain.NewPolicy(domain.ModeNone),
		domain.NewPolicy(domain.ModeOnly, "news", "chat", "trade"),
		domain.NewPolicy(domain.ModeExcept, "spam"),
	}
	for _, p := range policies {
		got, err := DecodePolicy(EncodePolicy(p))
		if err != nil {
			t.Fatalf("round trip %v: %v", p.Mode, err)
		}
		if !got.Equal(p) {
			t.Fatalf("round trip %v %v -> %v %v", p.Mode, p.Categories(), got.Mode, got.Categories())
		}
	}
}
