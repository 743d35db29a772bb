// internal/pipeline/runner.go

// Package pipeline drives meal images through enhancement, recognition
// and calorie aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"meal-kcal/internal/artifacts"
	"meal-kcal/internal/calories"
	"meal-kcal/internal/enhance"
	"meal-kcal/internal/models"
	"meal-kcal/internal/vision"
)

// ErrAlreadyAttempted is returned for a path whose earlier attempt in
// this run produced no recognition (for example it failed to decode).
var ErrAlreadyAttempted = errors.New("image already attempted in this run")

type Options struct {
	// ProcessedDir receives the enhanced JPEGs. Empty disables the local copy.
	ProcessedDir string
	Mirror       artifacts.Mirror
	Store        RecognitionStore
	Log          *zap.Logger
}

type Runner struct {
	recognizer   *vision.Recognizer
	calc         *calories.Calculator
	store        RecognitionStore
	processedDir string
	mirror       artifacts.Mirror
	log          *zap.Logger
	runID        string
	now          func() time.Time

	group     singleflight.Group
	mu        sync.Mutex
	attempted map[string]bool
	// unsaved holds results the store refused, so they are neither lost
	// nor recomputed.
	unsaved map[string]models.RecognitionRecord
}

func NewRunner(recognizer *vision.Recognizer, calc *calories.Calculator, opts Options) *Runner {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	runID := uuid.NewString()
	return &Runner{
		recognizer:   recognizer,
		calc:         calc,
		store:        store,
		processedDir: opts.ProcessedDir,
		mirror:       opts.Mirror,
		log:          log.With(zap.String("run_id", runID)),
		runID:        runID,
		now:          time.Now,
		attempted:    make(map[string]bool),
		unsaved:      make(map[string]models.RecognitionRecord),
	}
}

func (r *Runner) RunID() string { return r.runID }

func (r *Runner) Store() RecognitionStore { return r.store }

// RecognizeImage returns the recognition for rawPath, computing it at most
// once. Concurrent callers for the same path share one attempt, and a
// stored result is returned without touching the vision gate.
func (r *Runner) RecognizeImage(ctx context.Context, rawPath string, manual vision.ManualEntry) (models.RecognitionRecord, error) {
	if rec, ok, err := r.lookup(ctx, rawPath); err != nil || ok {
		return rec, err
	}

	v, err, _ := r.group.Do(rawPath, func() (interface{}, error) {
		return r.recognize(ctx, rawPath, manual)
	})
	if err != nil {
		return models.RecognitionRecord{}, err
	}
	return v.(models.RecognitionRecord), nil
}

// lookup finds an earlier result in the store or among unsaved results.
func (r *Runner) lookup(ctx context.Context, rawPath string) (models.RecognitionRecord, bool, error) {
	r.mu.Lock()
	rec, ok := r.unsaved[rawPath]
	r.mu.Unlock()
	if ok {
		return rec, true, nil
	}
	rec, ok, err := r.store.GetRecognition(ctx, rawPath)
	if err != nil {
		return models.RecognitionRecord{}, false, fmt.Errorf("failed to read recognition store: %w", err)
	}
	return rec, ok, nil
}

func (r *Runner) recognize(ctx context.Context, rawPath string, manual vision.ManualEntry) (models.RecognitionRecord, error) {
	if rec, ok, err := r.lookup(ctx, rawPath); err != nil || ok {
		return rec, err
	}

	r.mu.Lock()
	if r.attempted[rawPath] {
		r.mu.Unlock()
		return models.RecognitionRecord{}, fmt.Errorf("%s: %w", rawPath, ErrAlreadyAttempted)
	}
	r.attempted[rawPath] = true
	r.mu.Unlock()

	img, err := enhance.Load(rawPath)
	if err != nil {
		r.log.Warn("skipping unreadable image", zap.String("image", rawPath), zap.Error(err))
		return models.RecognitionRecord{}, err
	}
	data, err := enhance.EncodeJPEG(enhance.Enhance(img))
	if err != nil {
		r.log.Warn("skipping image that failed to encode", zap.String("image", rawPath), zap.Error(err))
		return models.RecognitionRecord{}, err
	}

	processed := r.persist(ctx, rawPath, data)

	result, err := r.recognizer.Recognize(ctx, filepath.Base(rawPath), data, manual)
	if err != nil {
		// Cancelled before an answer was kept; a later call may retry.
		r.mu.Lock()
		delete(r.attempted, rawPath)
		r.mu.Unlock()
		return models.RecognitionRecord{}, err
	}

	rec := models.RecognitionRecord{
		Image:              filepath.Base(rawPath),
		RawImagePath:       rawPath,
		ProcessedImagePath: processed,
		Ingredients:        result.Ingredients,
		Source:             result.Source,
		RunID:              r.runID,
		CreatedAt:          r.now().UTC(),
	}
	// The answer cost a paced vision call; keep it even if the caller left.
	if err := r.store.PutRecognition(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Warn("failed to store recognition, keeping it in memory",
			zap.String("image", rawPath), zap.Error(err))
		r.mu.Lock()
		r.unsaved[rawPath] = rec
		r.mu.Unlock()
	}
	return rec, nil
}

// persist writes the enhanced image locally and to the mirror. Failures
// are logged; they do not stop recognition.
func (r *Runner) persist(ctx context.Context, rawPath string, data []byte) string {
	var processed string
	if r.processedDir != "" {
		p, err := enhance.Save(r.processedDir, rawPath, data)
		if err != nil {
			r.log.Warn("failed to save enhanced image", zap.String("image", rawPath), zap.Error(err))
		} else {
			processed = p
		}
	}
	if r.mirror != nil {
		loc, err := r.mirror.Mirror(ctx, enhance.ProcessedName(rawPath), data)
		if err != nil {
			r.log.Warn("failed to mirror enhanced image", zap.String("image", rawPath), zap.Error(err))
		} else if processed == "" {
			processed = loc
		}
	}
	return processed
}

// ImagePaths lists the distinct non-empty meal image paths of plans in
// first-appearance order.
func ImagePaths(plans []models.DayPlan) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, p := range plans {
		for _, meal := range models.MealTypes {
			path := p.Paths[meal]
			if path == "" || seen[path] {
				continue
			}
			seen[path] = true
			paths = append(paths, path)
		}
	}
	return paths
}

// RecognizeAll recognizes every distinct image referenced by plans, one at
// a time. Images that cannot be decoded are skipped; only cancellation
// stops the loop.
func (r *Runner) RecognizeAll(ctx context.Context, plans []models.DayPlan, manual vision.ManualEntry) ([]models.RecognitionRecord, error) {
	paths := ImagePaths(plans)
	r.log.Info("recognizing meal images", zap.Int("images", len(paths)))

	var recs []models.RecognitionRecord
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return recs, err
		}
		rec, err := r.RecognizeImage(ctx, path, manual)
		switch {
		case err == nil:
			recs = append(recs, rec)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return recs, err
		default:
			r.log.Warn("image skipped", zap.String("image", path), zap.Error(err))
		}
	}
	return recs, nil
}

// Recognitions lists stored results followed by any the store refused.
func (r *Runner) Recognitions(ctx context.Context) ([]models.RecognitionRecord, error) {
	stored, err := r.store.ListRecognitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recognitions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.unsaved {
		stored = append(stored, rec)
	}
	return stored, nil
}

// Report folds stored recognitions into per-user reports.
func (r *Runner) Report(ctx context.Context, plans []models.DayPlan) ([]models.UserReport, error) {
	stored, err := r.Recognitions(ctx)
	if err != nil {
		return nil, err
	}
	return r.calc.BuildReports(ctx, plans, calories.FromRecords(stored)), nil
}

// ReportSaver persists user reports.
type ReportSaver interface {
	SaveReport(ctx context.Context, report models.UserReport) error
}

// SaveReports stores every report, logging and skipping failures, and
// returns how many were saved.
func (r *Runner) SaveReports(ctx context.Context, reports []models.UserReport, saver ReportSaver) int {
	saved := 0
	for _, report := range reports {
		if err := saver.SaveReport(ctx, report); err != nil {
			r.log.Warn("failed to save user report", zap.String("user", report.UserID), zap.Error(err))
			continue
		}
		saved++
	}
	return saved
}

// Run recognizes every image and then builds the reports.
func (r *Runner) Run(ctx context.Context, plans []models.DayPlan, manual vision.ManualEntry) ([]models.UserReport, error) {
	if _, err := r.RecognizeAll(ctx, plans, manual); err != nil {
		return nil, err
	}
	return r.Report(ctx, plans)
}

// EstimateImage recognizes one image and computes its calories.
func (r *Runner) EstimateImage(ctx context.Context, rawPath string, manual vision.ManualEntry) (models.RecognitionRecord, float64, []models.NormalizedEntry, error) {
	rec, err := r.RecognizeImage(ctx, rawPath, manual)
	if err != nil {
		return models.RecognitionRecord{}, 0, nil, err
	}
	total, detail := r.calc.ComputeKcal(ctx, rec.Ingredients)
	return rec, total, detail, nil
}
