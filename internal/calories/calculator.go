// internal/calories/calculator.go

// Package calories turns ingredient lists into per-meal, per-day and
// per-user energy totals.
package calories

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meal-kcal/internal/models"
	"meal-kcal/internal/normalize"
	"meal-kcal/internal/nutrition"
)

// DefaultConcurrency caps parallel nutrition lookups within one meal.
const DefaultConcurrency = 4

type Calculator struct {
	lookup      nutrition.Lookup
	concurrency int
	log         *zap.Logger
}

func NewCalculator(lookup nutrition.Lookup, concurrency int, log *zap.Logger) *Calculator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Calculator{lookup: lookup, concurrency: concurrency, log: log}
}

// ComputeKcal normalizes and looks up every entry and scales energy
// density by grams. A failed lookup contributes 0 kcal; it never fails
// the meal. Detail keeps input order and total is its sum.
func (c *Calculator) ComputeKcal(ctx context.Context, entries []models.IngredientEntry) (float64, []models.NormalizedEntry) {
	detail := make([]models.NormalizedEntry, len(entries))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			detail[i] = c.entry(ctx, e)
			return nil
		})
	}
	g.Wait()

	var total float64
	for _, d := range detail {
		total += d.Kcal
	}
	return total, detail
}

func (c *Calculator) entry(ctx context.Context, e models.IngredientEntry) models.NormalizedEntry {
	term := normalize.Normalize(e.Ingredient)
	grams := e.EffectiveGrams()
	d := models.NormalizedEntry{
		Ingredient: e.Ingredient,
		Normalized: term,
		Grams:      grams,
	}

	if c.lookup == nil || term == "" {
		return d
	}
	per100, err := c.lookup.KcalPer100g(ctx, term)
	if err != nil {
		c.log.Warn("nutrition lookup failed, using 0 kcal",
			zap.String("ingredient", e.Ingredient), zap.String("term", term), zap.Error(err))
		return d
	}
	if per100 > 0 {
		d.Kcal = per100 / 100.0 * grams
	}
	return d
}
