// internal/calories/aggregate.go
package calories

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"meal-kcal/internal/models"
)

// Recognitions maps a raw image path to the ingredients recognized in it.
type Recognitions map[string][]models.IngredientEntry

// FromRecords indexes recognition records by raw image path.
func FromRecords(records []models.RecognitionRecord) Recognitions {
	recs := make(Recognitions, len(records))
	for _, r := range records {
		recs[r.RawImagePath] = r.Ingredients
	}
	return recs
}

// BuildMeal computes one meal slot. A slot without an image, or whose
// image has no recognition, is zero-filled.
func (c *Calculator) BuildMeal(ctx context.Context, meal models.MealType, path string, recs Recognitions) models.MealRecord {
	rec := models.MealRecord{
		Meal:        meal,
		ImagePath:   path,
		Ingredients: []models.IngredientEntry{},
		Detail:      []models.NormalizedEntry{},
	}
	if path == "" {
		return rec
	}
	ingredients, ok := recs[path]
	if !ok {
		return rec
	}
	if ingredients != nil {
		rec.Ingredients = ingredients
	}
	rec.Kcal, rec.Detail = c.ComputeKcal(ctx, rec.Ingredients)
	return rec
}

// BuildDay computes the three meals of a user-day and their total.
func (c *Calculator) BuildDay(ctx context.Context, plan models.DayPlan, recs Recognitions) models.DayRecord {
	day := models.DayRecord{
		UserID:    plan.UserID,
		Day:       plan.Day,
		Breakfast: c.BuildMeal(ctx, models.Breakfast, plan.Paths[models.Breakfast], recs),
		Lunch:     c.BuildMeal(ctx, models.Lunch, plan.Paths[models.Lunch], recs),
		Dinner:    c.BuildMeal(ctx, models.Dinner, plan.Paths[models.Dinner], recs),
	}
	day.DailyTotalKcal = day.Breakfast.Kcal + day.Lunch.Kcal + day.Dinner.Kcal
	return day
}

// BuildReports folds day plans into one report per user. Users appear in
// the order they are first seen; days are sorted ascending.
func (c *Calculator) BuildReports(ctx context.Context, plans []models.DayPlan, recs Recognitions) []models.UserReport {
	var order []string
	byUser := make(map[string][]models.DayPlan)
	for _, p := range plans {
		if _, ok := byUser[p.UserID]; !ok {
			order = append(order, p.UserID)
		}
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	reports := make([]models.UserReport, 0, len(order))
	for _, user := range order {
		days := byUser[user]
		sort.SliceStable(days, func(i, j int) bool { return days[i].Day < days[j].Day })

		report := models.UserReport{UserID: user, Days: make([]models.DayRecord, 0, len(days))}
		for i, p := range days {
			if i > 0 && days[i-1].Day == p.Day {
				c.log.Warn("linked dataset repeats a day, keeping both rows",
					zap.String("user", user), zap.Int("day", p.Day))
			}
			report.Days = append(report.Days, c.BuildDay(ctx, p, recs))
		}
		c.log.Info("user report built", zap.String("user", user), zap.Int("days", len(report.Days)))
		reports = append(reports, report)
	}
	return reports
}
