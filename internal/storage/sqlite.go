// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"meal-kcal/internal/models"
)

// timeLayout is fixed-width so stored timestamps sort chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; the pipeline is sequential anyway.
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS recognitions (
        raw_image_path TEXT PRIMARY KEY,
        image TEXT NOT NULL,
        processed_image_path TEXT NOT NULL,
        ingredients_json TEXT NOT NULL,
        source TEXT NOT NULL,
        run_id TEXT NOT NULL,
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS day_records (
        user_id TEXT NOT NULL,
        day INTEGER NOT NULL,
        breakfast_json TEXT NOT NULL,
        lunch_json TEXT NOT NULL,
        dinner_json TEXT NOT NULL,
        breakfast_kcal REAL NOT NULL,
        lunch_kcal REAL NOT NULL,
        dinner_kcal REAL NOT NULL,
        daily_total_kcal REAL NOT NULL,
        updated_at TEXT NOT NULL,
        PRIMARY KEY (user_id, day)
    );

    CREATE INDEX IF NOT EXISTS idx_recognitions_run_id ON recognitions(run_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) PutRecognition(ctx context.Context, rec models.RecognitionRecord) error {
	ingredients := rec.Ingredients
	if ingredients == nil {
		ingredients = []models.IngredientEntry{}
	}
	ingredientsJSON, err := json.Marshal(ingredients)
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}

	query := `
        INSERT INTO recognitions (raw_image_path, image, processed_image_path, ingredients_json, source, run_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(raw_image_path) DO UPDATE SET
            image = excluded.image,
            processed_image_path = excluded.processed_image_path,
            ingredients_json = excluded.ingredients_json,
            source = excluded.source,
            run_id = excluded.run_id,
            created_at = excluded.created_at
    `
	_, err = s.db.ExecContext(ctx, query,
		rec.RawImagePath, rec.Image, rec.ProcessedImagePath, string(ingredientsJSON),
		string(rec.Source), rec.RunID, rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert recognition: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetRecognition(ctx context.Context, rawPath string) (models.RecognitionRecord, bool, error) {
	query := `
        SELECT raw_image_path, image, processed_image_path, ingredients_json, source, run_id, created_at
        FROM recognitions
        WHERE raw_image_path = ?
    `
	rec, err := scanRecognition(s.db.QueryRowContext(ctx, query, rawPath))
	if err == sql.ErrNoRows {
		return models.RecognitionRecord{}, false, nil
	}
	if err != nil {
		return models.RecognitionRecord{}, false, err
	}
	return rec, true, nil
}

// ListRecognitions returns every stored recognition, oldest first.
func (s *SQLiteStorage) ListRecognitions(ctx context.Context) ([]models.RecognitionRecord, error) {
	query := `
        SELECT raw_image_path, image, processed_image_path, ingredients_json, source, run_id, created_at
        FROM recognitions
        ORDER BY created_at, rowid
    `
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query recognitions: %w", err)
	}
	defer rows.Close()

	var recs []models.RecognitionRecord
	for rows.Next() {
		rec, err := scanRecognition(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecognition(row scanner) (models.RecognitionRecord, error) {
	var rec models.RecognitionRecord
	var ingredientsJSON, source, createdAtStr string

	err := row.Scan(&rec.RawImagePath, &rec.Image, &rec.ProcessedImagePath,
		&ingredientsJSON, &source, &rec.RunID, &createdAtStr)
	if err == sql.ErrNoRows {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("failed to scan recognition: %w", err)
	}

	if err := json.Unmarshal([]byte(ingredientsJSON), &rec.Ingredients); err != nil {
		return rec, fmt.Errorf("failed to parse ingredients for %s: %w", rec.RawImagePath, err)
	}
	if rec.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return rec, fmt.Errorf("failed to parse created_at: %w", err)
	}
	rec.Source = models.RecognitionSource(source)
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// SaveReport replaces the stored days of one user report. When the report
// repeats a day, the later record is kept.
func (s *SQLiteStorage) SaveReport(ctx context.Context, report models.UserReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM day_records WHERE user_id = ?`, report.UserID); err != nil {
		return fmt.Errorf("failed to clear day records: %w", err)
	}

	query := `
        INSERT INTO day_records (user_id, day, breakfast_json, lunch_json, dinner_json,
            breakfast_kcal, lunch_kcal, dinner_kcal, daily_total_kcal, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(user_id, day) DO UPDATE SET
            breakfast_json = excluded.breakfast_json,
            lunch_json = excluded.lunch_json,
            dinner_json = excluded.dinner_json,
            breakfast_kcal = excluded.breakfast_kcal,
            lunch_kcal = excluded.lunch_kcal,
            dinner_kcal = excluded.dinner_kcal,
            daily_total_kcal = excluded.daily_total_kcal,
            updated_at = excluded.updated_at
    `
	now := time.Now().UTC().Format(timeLayout)
	for _, day := range report.Days {
		meals := make([]string, 0, 3)
		for _, m := range day.Meals() {
			b, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %w", m.Meal, err)
			}
			meals = append(meals, string(b))
		}
		_, err = tx.ExecContext(ctx, query,
			report.UserID, day.Day, meals[0], meals[1], meals[2],
			day.Breakfast.Kcal, day.Lunch.Kcal, day.Dinner.Kcal, day.DailyTotalKcal, now)
		if err != nil {
			return fmt.Errorf("failed to insert day record: %w", err)
		}
	}

	return tx.Commit()
}

// GetReport loads a user's days in ascending order. A user with no rows
// yields a report with no days.
func (s *SQLiteStorage) GetReport(ctx context.Context, userID string) (models.UserReport, error) {
	query := `
        SELECT day, breakfast_json, lunch_json, dinner_json, daily_total_kcal
        FROM day_records
        WHERE user_id = ?
        ORDER BY day
    `
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return models.UserReport{}, fmt.Errorf("failed to query day records: %w", err)
	}
	defer rows.Close()

	report := models.UserReport{UserID: userID, Days: []models.DayRecord{}}
	for rows.Next() {
		day := models.DayRecord{UserID: userID}
		var breakfast, lunch, dinner string
		if err := rows.Scan(&day.Day, &breakfast, &lunch, &dinner, &day.DailyTotalKcal); err != nil {
			return models.UserReport{}, fmt.Errorf("failed to scan day record: %w", err)
		}

		for _, m := range []struct {
			raw  string
			dest *models.MealRecord
		}{{breakfast, &day.Breakfast}, {lunch, &day.Lunch}, {dinner, &day.Dinner}} {
			if err := json.Unmarshal([]byte(m.raw), m.dest); err != nil {
				return models.UserReport{}, fmt.Errorf("failed to parse meal for %s day %d: %w", userID, day.Day, err)
			}
		}
		report.Days = append(report.Days, day)
	}
	return report, rows.Err()
}
