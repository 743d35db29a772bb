// internal/vision/manual.go
package vision

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"meal-kcal/internal/models"
)

// ManualEntry supplies ingredients by hand when automatic recognition
// fails. It is consulted at most once per image.
type ManualEntry interface {
	Collect(ctx context.Context, image string) []models.IngredientEntry
}

// TerminalEntry prompts an operator for ingredient names and gram amounts
// until an empty name is entered or input ends.
type TerminalEntry struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalEntry(in io.Reader, out io.Writer) *TerminalEntry {
	return &TerminalEntry{in: bufio.NewReader(in), out: out}
}

func (t *TerminalEntry) Collect(ctx context.Context, image string) []models.IngredientEntry {
	fmt.Fprintf(t.out, "\nManual entry for %s\n", image)

	entries := []models.IngredientEntry{}
	for ctx.Err() == nil {
		fmt.Fprint(t.out, "Ingredient name (Enter to finish): ")
		name, ok := t.readLine()
		if !ok || name == "" {
			break
		}

		fmt.Fprintf(t.out, "Weight (g) for %s: ", name)
		amount, _ := t.readLine()
		grams := models.ParseGrams(amount)
		if grams == nil {
			fmt.Fprintf(t.out, "Could not read %q as grams, recorded without weight\n", amount)
		}
		entries = append(entries, models.IngredientEntry{Ingredient: name, Grams: grams})
	}

	fmt.Fprintf(t.out, "Manual entry saved: %d ingredient(s)\n", len(entries))
	return entries
}

// readLine returns the next trimmed line; ok is false once input is
// exhausted and nothing was read.
func (t *TerminalEntry) readLine() (string, bool) {
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// ManualFunc adapts a plain function to ManualEntry.
type ManualFunc func(ctx context.Context, image string) []models.IngredientEntry

func (f ManualFunc) Collect(ctx context.Context, image string) []models.IngredientEntry {
	return f(ctx, image)
}

// PresetEntry answers the fallback with a fixed list, e.g. ingredients
// supplied alongside a tool call.
type PresetEntry []models.IngredientEntry

func (p PresetEntry) Collect(context.Context, string) []models.IngredientEntry {
	out := make([]models.IngredientEntry, len(p))
	copy(out, p)
	return out
}

// NoManualEntry is used when nobody is available to type ingredients.
type NoManualEntry struct{}

func (NoManualEntry) Collect(context.Context, string) []models.IngredientEntry {
	return []models.IngredientEntry{}
}
