// internal/dataset/dataset.go

// Package dataset reads the linked meal dataset and writes the
// recognition and per-user report tables as CSV.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"meal-kcal/internal/models"
)

// Linked dataset columns.
const (
	ColID         = "ID"
	ColDay        = "Day"
	ColFirstMeal  = "First Meal Path"
	ColSecondMeal = "Second Meal Path"
	ColThirdMeal  = "Third Meal Path"
)

var mealColumns = map[models.MealType]string{
	models.Breakfast: ColFirstMeal,
	models.Lunch:     ColSecondMeal,
	models.Dinner:    ColThirdMeal,
}

// RecognitionHeader is the column layout of the recognition table.
var RecognitionHeader = []string{"image", "raw_image_path", "processed_image_path", "ingredients_json"}

// ReadLinked parses the linked dataset. Extra columns are ignored; an empty
// or "nan" path cell means the meal has no image.
func ReadLinked(r io.Reader) ([]models.DayPlan, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range []string{ColID, ColDay, ColFirstMeal, ColSecondMeal, ColThirdMeal} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("linked dataset is missing column %q", col)
		}
	}

	var plans []models.DayPlan
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		cell := func(col string) string {
			i := idx[col]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		day, err := parseDay(cell(ColDay))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		plan := models.DayPlan{
			UserID: cell(ColID),
			Day:    day,
			Paths:  make(map[models.MealType]string, len(mealColumns)),
		}
		for meal, col := range mealColumns {
			if p := cell(col); p != "" && !strings.EqualFold(p, "nan") {
				plan.Paths[meal] = p
			}
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func ReadLinkedFile(path string) ([]models.DayPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open linked dataset: %w", err)
	}
	defer f.Close()
	return ReadLinked(f)
}

// parseDay accepts "3" as well as "3.0", which spreadsheet exports produce.
func parseDay(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("invalid day %q", s)
	}
	return int(f), nil
}

// WriteRecognitions writes one row per recognized image.
func WriteRecognitions(w io.Writer, recs []models.RecognitionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecognitionHeader); err != nil {
		return err
	}
	for _, rec := range recs {
		ingredients, err := marshalList(rec.Ingredients)
		if err != nil {
			return fmt.Errorf("failed to marshal ingredients for %s: %w", rec.RawImagePath, err)
		}
		if err := cw.Write([]string{rec.Image, rec.RawImagePath, rec.ProcessedImagePath, ingredients}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRecognitions loads a recognition table. A row whose ingredient JSON
// does not parse is kept with an empty list.
func ReadRecognitions(r io.Reader) ([]models.RecognitionRecord, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read recognitions: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	idx := make(map[string]int)
	for i, h := range rows[0] {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range RecognitionHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("recognition table is missing column %q", col)
		}
	}

	recs := make([]models.RecognitionRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := models.RecognitionRecord{
			Image:              row[idx["image"]],
			RawImagePath:       row[idx["raw_image_path"]],
			ProcessedImagePath: row[idx["processed_image_path"]],
		}
		if err := json.Unmarshal([]byte(row[idx["ingredients_json"]]), &rec.Ingredients); err != nil || rec.Ingredients == nil {
			rec.Ingredients = []models.IngredientEntry{}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ReportHeader is the column layout of a per-user report.
func ReportHeader() []string {
	h := []string{"Day"}
	for _, m := range models.MealTypes {
		name := string(m)
		h = append(h, name+"_Ingredients", name+"_Kcal", name+"_Detail")
	}
	return append(h, "Daily_Total_Kcal")
}

// WriteReport writes one row per day of report.
func WriteReport(w io.Writer, report models.UserReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader()); err != nil {
		return err
	}
	for _, day := range report.Days {
		row := []string{strconv.Itoa(day.Day)}
		for _, m := range day.Meals() {
			ingredients, err := marshalList(m.Ingredients)
			if err != nil {
				return err
			}
			detail, err := marshalList(m.Detail)
			if err != nil {
				return err
			}
			row = append(row, ingredients, formatKcal(m.Kcal), detail)
		}
		row = append(row, formatKcal(day.DailyTotalKcal))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReportFiles writes <dir>/<user>.csv for every report and returns
// the written paths.
func WriteReportFiles(dir string, reports []models.UserReport) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}
	paths := make([]string, 0, len(reports))
	for _, report := range reports {
		path := filepath.Join(dir, safeName(report.UserID)+".csv")
		if err := writeFile(path, func(w io.Writer) error { return WriteReport(w, report) }); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func WriteRecognitionsFile(path string, recs []models.RecognitionRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	return writeFile(path, func(w io.Writer) error { return WriteRecognitions(w, recs) })
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func marshalList[T any](list []T) (string, error) {
	if list == nil {
		list = []T{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}

func formatKcal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// safeName keeps user IDs from escaping the report directory.
func safeName(id string) string {
	id = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, strings.TrimSpace(id))
	switch id {
	case "", ".", "..":
		return "unknown"
	}
	return id
}
