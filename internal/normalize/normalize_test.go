package normalize

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"scallions", "onions, spring or scallions"},
		{"  Green Onions ", "onions, spring or scallions"},
		{"RICE", "cooked rice"},
		{"Bok Choy", "cabbage, chinese (pak-choi)"},
		{"unicornfruit", "unicornfruit"},
		{"  Salmon Fillet\t", "salmon fillet"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", " ", "rice", "White Rice", "udon", "scallions", "pak choi", "Chicken Thigh", "tofu"}
	for k, v := range synonyms {
		inputs = append(inputs, k, v)
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize(Normalize(%q)) = %q, want %q", in, twice, once)
		}
	}
}

func TestNormalizeValue(t *testing.T) {
	for _, v := range []any{nil, 42, 3.5, true, []string{"rice"}, map[string]any{}} {
		if got := NormalizeValue(v); got != "" {
			t.Errorf("NormalizeValue(%#v) = %q, want empty", v, got)
		}
	}
	if got := NormalizeValue(" Scallions"); got != "onions, spring or scallions" {
		t.Errorf("NormalizeValue(string) = %q", got)
	}
}
