package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meal-kcal/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "meal-kcal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecognitionRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	rec := models.RecognitionRecord{
		Image:              "001.png",
		RawImagePath:       "/meals/001.png",
		ProcessedImagePath: "/processed/001.jpg",
		Ingredients: []models.IngredientEntry{
			{Ingredient: "rice", Grams: models.Grams(150)},
			{Ingredient: "egg", Grams: nil},
		},
		Source:    models.SourceVision,
		RunID:     "run-1",
		CreatedAt: created,
	}
	if err := s.PutRecognition(ctx, rec); err != nil {
		t.Fatalf("PutRecognition: %v", err)
	}

	got, ok, err := s.GetRecognition(ctx, "/meals/001.png")
	if err != nil || !ok {
		t.Fatalf("GetRecognition = %v, %v", ok, err)
	}
	if got.Image != rec.Image || got.ProcessedImagePath != rec.ProcessedImagePath || got.RunID != "run-1" {
		t.Errorf("got = %+v", got)
	}
	if got.Source != models.SourceVision || !got.CreatedAt.Equal(created) {
		t.Errorf("source = %q, created = %v", got.Source, got.CreatedAt)
	}
	if len(got.Ingredients) != 2 || *got.Ingredients[0].Grams != 150 || got.Ingredients[1].Grams != nil {
		t.Errorf("ingredients = %+v", got.Ingredients)
	}

	if _, ok, err := s.GetRecognition(ctx, "/meals/none.png"); ok || err != nil {
		t.Errorf("missing path = %v, %v, want false, nil", ok, err)
	}
}

func TestRecognitionUpsertAndList(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, p := range []string{"/b.jpg", "/a.jpg"} {
		err := s.PutRecognition(ctx, models.RecognitionRecord{
			Image: filepath.Base(p), RawImagePath: p, Source: models.SourceVision,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("PutRecognition(%s): %v", p, err)
		}
	}
	err := s.PutRecognition(ctx, models.RecognitionRecord{
		Image: "b.jpg", RawImagePath: "/b.jpg", Source: models.SourceManual, CreatedAt: base,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	list, err := s.ListRecognitions(ctx)
	if err != nil {
		t.Fatalf("ListRecognitions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].RawImagePath != "/b.jpg" || list[0].Source != models.SourceManual {
		t.Errorf("list[0] = %+v", list[0])
	}
	if list[0].Ingredients == nil || len(list[0].Ingredients) != 0 {
		t.Errorf("empty ingredient list should round-trip as [], got %#v", list[0].Ingredients)
	}
}

func TestReportRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	meal := func(m models.MealType, kcal float64) models.MealRecord {
		return models.MealRecord{
			Meal:        m,
			Ingredients: []models.IngredientEntry{{Ingredient: "rice", Grams: models.Grams(kcal / 1.3)}},
			Detail:      []models.NormalizedEntry{{Ingredient: "rice", Normalized: "cooked rice", Grams: kcal / 1.3, Kcal: kcal}},
			Kcal:        kcal,
		}
	}
	report := models.UserReport{UserID: "u1", Days: []models.DayRecord{
		{UserID: "u1", Day: 2, Breakfast: meal(models.Breakfast, 130), Lunch: meal(models.Lunch, 0), Dinner: meal(models.Dinner, 260), DailyTotalKcal: 390},
		{UserID: "u1", Day: 1, Breakfast: meal(models.Breakfast, 65), Lunch: meal(models.Lunch, 65), Dinner: meal(models.Dinner, 0), DailyTotalKcal: 130},
	}}
	if err := s.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := s.GetReport(ctx, "u1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if len(got.Days) != 2 || got.Days[0].Day != 1 || got.Days[1].Day != 2 {
		t.Fatalf("days = %+v", got.Days)
	}
	d := got.Days[1]
	if d.DailyTotalKcal != 390 || d.Dinner.Kcal != 260 || d.Dinner.Meal != models.Dinner {
		t.Errorf("day 2 = %+v", d)
	}
	if len(d.Breakfast.Detail) != 1 || d.Breakfast.Detail[0].Normalized != "cooked rice" {
		t.Errorf("breakfast detail = %+v", d.Breakfast.Detail)
	}

	// Saving again replaces rather than appends.
	report.Days = report.Days[:1]
	if err := s.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport again: %v", err)
	}
	got, _ = s.GetReport(ctx, "u1")
	if len(got.Days) != 1 || got.Days[0].Day != 2 {
		t.Errorf("days after replace = %+v", got.Days)
	}
}

func TestGetReportUnknownUser(t *testing.T) {
	got, err := newTestStorage(t).GetReport(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.UserID != "nobody" || len(got.Days) != 0 {
		t.Errorf("got = %+v", got)
	}
}

func TestListRecognitionsSubsecondOrder(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)

	// .12s is later than .1s; the text form must still sort that way.
	for _, r := range []struct {
		path string
		at   time.Time
	}{
		{"/late.jpg", base.Add(120 * time.Millisecond)},
		{"/early.jpg", base.Add(100 * time.Millisecond)},
	} {
		if err := s.PutRecognition(ctx, models.RecognitionRecord{RawImagePath: r.path, CreatedAt: r.at}); err != nil {
			t.Fatalf("PutRecognition(%s): %v", r.path, err)
		}
	}

	list, err := s.ListRecognitions(ctx)
	if err != nil {
		t.Fatalf("ListRecognitions: %v", err)
	}
	if len(list) != 2 || list[0].RawImagePath != "/early.jpg" || list[1].RawImagePath != "/late.jpg" {
		t.Errorf("order = %v, %v", list[0].RawImagePath, list[1].RawImagePath)
	}
	if !list[0].CreatedAt.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("created_at = %v", list[0].CreatedAt)
	}
}

func TestSaveReportDuplicateDay(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	report := models.UserReport{UserID: "u1", Days: []models.DayRecord{
		{UserID: "u1", Day: 1, DailyTotalKcal: 100},
		{UserID: "u1", Day: 1, DailyTotalKcal: 250},
		{UserID: "u1", Day: 2, DailyTotalKcal: 80},
	}}
	if err := s.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := s.GetReport(ctx, "u1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if len(got.Days) != 2 || got.Days[0].Day != 1 || got.Days[0].DailyTotalKcal != 250 {
		t.Errorf("days = %+v, want day 1 from the later record", got.Days)
	}
}
