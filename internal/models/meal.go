// internal/models/meal.go
package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

type MealType string

const (
	Breakfast MealType = "Breakfast"
	Lunch     MealType = "Lunch"
	Dinner    MealType = "Dinner"
)

// MealTypes lists the meal slots of a day in report column order.
var MealTypes = []MealType{Breakfast, Lunch, Dinner}

type RecognitionSource string

const (
	SourceVision RecognitionSource = "vision"
	SourceManual RecognitionSource = "manual"
)

// MealImage identifies one meal photo by its path on disk.
type MealImage struct {
	Path string `json:"path"`
}

// IngredientEntry is one recognized ingredient. Grams is nil when the
// amount was missing or could not be parsed.
type IngredientEntry struct {
	Ingredient string   `json:"ingredient"`
	Grams      *float64 `json:"grams"`
}

// UnmarshalJSON accepts whatever the vision model or an operator produced:
// numeric strings count as grams, anything else unparseable becomes null,
// and a non-string ingredient becomes "".
func (e *IngredientEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Ingredient json.RawMessage `json:"ingredient"`
		Grams      json.RawMessage `json:"grams"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Ingredient = ""
	var name string
	if len(raw.Ingredient) > 0 && json.Unmarshal(raw.Ingredient, &name) == nil {
		e.Ingredient = name
	}
	e.Grams = parseGrams(raw.Grams)
	return nil
}

func parseGrams(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return ParseGrams(s)
}

// ParseGrams parses operator or model text as a gram amount, returning nil
// when it is not a finite number.
func ParseGrams(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// EffectiveGrams is the amount used for energy calculation: absent,
// negative and non-finite values count as zero.
func (e IngredientEntry) EffectiveGrams() float64 {
	if e.Grams == nil {
		return 0
	}
	g := *e.Grams
	if math.IsNaN(g) || math.IsInf(g, 0) || g < 0 {
		return 0
	}
	return g
}

// Grams returns a pointer to g, for building entries in code.
func Grams(g float64) *float64 {
	return &g
}

type RecognitionResult struct {
	Ingredients []IngredientEntry `json:"ingredients"`
	Source      RecognitionSource `json:"source"`
}

type NormalizedEntry struct {
	Ingredient string  `json:"ingredient"`
	Normalized string  `json:"normalized"`
	Grams      float64 `json:"grams"`
	Kcal       float64 `json:"kcal"`
}

type MealRecord struct {
	Meal        MealType          `json:"meal"`
	ImagePath   string            `json:"image_path,omitempty"`
	Ingredients []IngredientEntry `json:"ingredients"`
	Detail      []NormalizedEntry `json:"detail"`
	Kcal        float64           `json:"kcal"`
}

type DayRecord struct {
	UserID         string     `json:"user_id"`
	Day            int        `json:"day"`
	Breakfast      MealRecord `json:"breakfast"`
	Lunch          MealRecord `json:"lunch"`
	Dinner         MealRecord `json:"dinner"`
	DailyTotalKcal float64    `json:"daily_total_kcal"`
}

// Meals returns the three meal records in slot order.
func (d DayRecord) Meals() []MealRecord {
	return []MealRecord{d.Breakfast, d.Lunch, d.Dinner}
}

type UserReport struct {
	UserID string      `json:"user_id"`
	Days   []DayRecord `json:"days"`
}

// RecognitionRecord is the persisted outcome of recognizing one image.
type RecognitionRecord struct {
	Image              string            `json:"image"`
	RawImagePath       string            `json:"raw_image_path"`
	ProcessedImagePath string            `json:"processed_image_path"`
	Ingredients        []IngredientEntry `json:"ingredients"`
	Source             RecognitionSource `json:"source"`
	RunID              string            `json:"run_id"`
	CreatedAt          time.Time         `json:"created_at"`
}

// DayPlan is one row of the linked dataset: a user-day and up to three
// meal image paths ("" when unavailable).
type DayPlan struct {
	UserID string
	Day    int
	Paths  map[MealType]string
}
