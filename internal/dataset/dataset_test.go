package dataset

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meal-kcal/internal/models"
)

const linked = `ID,Day,First Meal,First Meal Path,Second Meal Path,Third Meal Path
7,2,1,/img/001.jpg,,/img/003.jpg
7,1.0,4,/img/004.jpg,nan,
3,1,5,,,
`

func TestReadLinked(t *testing.T) {
	plans, err := ReadLinked(strings.NewReader(linked))
	if err != nil {
		t.Fatalf("ReadLinked: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("len = %d, want 3", len(plans))
	}

	p := plans[0]
	if p.UserID != "7" || p.Day != 2 {
		t.Errorf("plan[0] = %+v", p)
	}
	if p.Paths[models.Breakfast] != "/img/001.jpg" || p.Paths[models.Dinner] != "/img/003.jpg" {
		t.Errorf("paths = %v", p.Paths)
	}
	if _, ok := p.Paths[models.Lunch]; ok {
		t.Errorf("empty cell should leave Lunch unset: %v", p.Paths)
	}
	if plans[1].Day != 1 || len(plans[1].Paths) != 1 {
		t.Errorf("plan[1] = %+v", plans[1])
	}
	if len(plans[2].Paths) != 0 {
		t.Errorf("plan[2] paths = %v, want none", plans[2].Paths)
	}
}

func TestReadLinkedErrors(t *testing.T) {
	if _, err := ReadLinked(strings.NewReader("ID,Day\n1,1\n")); err == nil {
		t.Error("expected error for missing meal columns")
	}
	bad := "ID,Day,First Meal Path,Second Meal Path,Third Meal Path\n1,monday,,,\n"
	if _, err := ReadLinked(strings.NewReader(bad)); err == nil {
		t.Error("expected error for non-numeric day")
	}
}

func TestRecognitionsRoundTrip(t *testing.T) {
	recs := []models.RecognitionRecord{
		{
			Image: "001.jpg", RawImagePath: "/img/001.jpg", ProcessedImagePath: "/out/001.jpg",
			Ingredients: []models.IngredientEntry{{Ingredient: "rice", Grams: models.Grams(150)}, {Ingredient: "egg"}},
		},
		{Image: "002.jpg", RawImagePath: "/img/002.jpg", ProcessedImagePath: "/out/002.jpg"},
	}
	var buf bytes.Buffer
	if err := WriteRecognitions(&buf, recs); err != nil {
		t.Fatalf("WriteRecognitions: %v", err)
	}
	if !strings.Contains(buf.String(), `[{""ingredient"":""rice"",""grams"":150},{""ingredient"":""egg"",""grams"":null}]`) {
		t.Errorf("unexpected CSV:\n%s", buf.String())
	}

	got, err := ReadRecognitions(&buf)
	if err != nil {
		t.Fatalf("ReadRecognitions: %v", err)
	}
	if len(got) != 2 || got[0].RawImagePath != "/img/001.jpg" || len(got[0].Ingredients) != 2 {
		t.Fatalf("got = %+v", got)
	}
	if got[1].Ingredients == nil || len(got[1].Ingredients) != 0 {
		t.Errorf("empty list = %#v", got[1].Ingredients)
	}
}

func TestReadRecognitionsBadJSON(t *testing.T) {
	in := "image,raw_image_path,processed_image_path,ingredients_json\na.jpg,/a.jpg,/p/a.jpg,oops\n"
	got, err := ReadRecognitions(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadRecognitions: %v", err)
	}
	if len(got) != 1 || len(got[0].Ingredients) != 0 {
		t.Errorf("got = %+v", got)
	}
}

func TestWriteReport(t *testing.T) {
	zero := func(m models.MealType) models.MealRecord {
		return models.MealRecord{Meal: m, Ingredients: []models.IngredientEntry{}, Detail: []models.NormalizedEntry{}}
	}
	report := models.UserReport{UserID: "7", Days: []models.DayRecord{{
		UserID: "7",
		Day:    1,
		Breakfast: models.MealRecord{
			Meal:        models.Breakfast,
			Ingredients: []models.IngredientEntry{{Ingredient: "rice", Grams: models.Grams(150)}},
			Detail:      []models.NormalizedEntry{{Ingredient: "rice", Normalized: "cooked rice", Grams: 150, Kcal: 195}},
			Kcal:        195,
		},
		Lunch:          zero(models.Lunch),
		Dinner:         zero(models.Dinner),
		DailyTotalKcal: 195,
	}}}

	dir := t.TempDir()
	paths, err := WriteReportFiles(dir, []models.UserReport{report})
	if err != nil {
		t.Fatalf("WriteReportFiles: %v", err)
	}
	if len(paths) != 1 || paths[0] != filepath.Join(dir, "7.csv") {
		t.Fatalf("paths = %v", paths)
	}

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	header := strings.Join(rows[0], ",")
	want := "Day,Breakfast_Ingredients,Breakfast_Kcal,Breakfast_Detail,Lunch_Ingredients,Lunch_Kcal,Lunch_Detail,Dinner_Ingredients,Dinner_Kcal,Dinner_Detail,Daily_Total_Kcal"
	if header != want {
		t.Errorf("header = %s", header)
	}
	row := rows[1]
	if row[0] != "1" || row[2] != "195" || row[10] != "195" {
		t.Errorf("row = %v", row)
	}
	if row[3] != `[{"ingredient":"rice","normalized":"cooked rice","grams":150,"kcal":195}]` {
		t.Errorf("detail = %s", row[3])
	}
	if row[4] != "[]" || row[5] != "0" || row[6] != "[]" {
		t.Errorf("zero-filled lunch = %v", row[4:7])
	}
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{"7": "7", "a/b": "a_b", "..": "unknown", " ": "unknown", `x\y`: "x_y"}
	for in, want := range cases {
		if got := safeName(in); got != want {
			t.Errorf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}
