package models

import (
	"encoding/json"
	"math"
	"testing"
)

func TestIngredientEntryUnmarshal(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantName  string
		wantGrams *float64
	}{
		{"number", `{"ingredient":"rice","grams":150}`, "rice", Grams(150)},
		{"numeric string", `{"ingredient":"rice","grams":" 80.5 "}`, "rice", Grams(80.5)},
		{"null grams", `{"ingredient":"rice","grams":null}`, "rice", nil},
		{"missing grams", `{"ingredient":"rice"}`, "rice", nil},
		{"unparseable grams", `{"ingredient":"rice","grams":"a handful"}`, "rice", nil},
		{"object grams", `{"ingredient":"rice","grams":{"v":1}}`, "rice", nil},
		{"non-string ingredient", `{"ingredient":42,"grams":10}`, "", Grams(10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e IngredientEntry
			if err := json.Unmarshal([]byte(tt.in), &e); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if e.Ingredient != tt.wantName {
				t.Errorf("Ingredient = %q, want %q", e.Ingredient, tt.wantName)
			}
			switch {
			case tt.wantGrams == nil && e.Grams != nil:
				t.Errorf("Grams = %v, want nil", *e.Grams)
			case tt.wantGrams != nil && e.Grams == nil:
				t.Errorf("Grams = nil, want %v", *tt.wantGrams)
			case tt.wantGrams != nil && *e.Grams != *tt.wantGrams:
				t.Errorf("Grams = %v, want %v", *e.Grams, *tt.wantGrams)
			}
		})
	}
}

func TestIngredientEntryRejectsNonObject(t *testing.T) {
	var e IngredientEntry
	if err := json.Unmarshal([]byte(`"rice"`), &e); err == nil {
		t.Error("expected error for non-object entry")
	}
}

func TestEffectiveGrams(t *testing.T) {
	cases := []struct {
		grams *float64
		want  float64
	}{
		{nil, 0},
		{Grams(120), 120},
		{Grams(-5), 0},
		{Grams(math.NaN()), 0},
		{Grams(math.Inf(1)), 0},
	}
	for _, c := range cases {
		if got := (IngredientEntry{Ingredient: "x", Grams: c.grams}).EffectiveGrams(); got != c.want {
			t.Errorf("EffectiveGrams(%v) = %v, want %v", c.grams, got, c.want)
		}
	}
}

func TestParseGrams(t *testing.T) {
	if g := ParseGrams("12.5"); g == nil || *g != 12.5 {
		t.Errorf("ParseGrams(12.5) = %v", g)
	}
	for _, bad := range []string{"", "abc", "NaN", "Inf", "10g"} {
		if g := ParseGrams(bad); g != nil {
			t.Errorf("ParseGrams(%q) = %v, want nil", bad, *g)
		}
	}
}
