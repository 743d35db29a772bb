// internal/vision/recognizer.go

// Package vision turns an enhanced meal image into a list of ingredients
// and gram amounts using an external vision model, falling back to manual
// entry once when the model's answer cannot be used.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"meal-kcal/internal/models"
)

// ErrRecognitionFailure marks a vision answer that was not a non-empty
// JSON array of ingredient objects, or a failed call.
var ErrRecognitionFailure = errors.New("recognition failed")

type state int

const (
	attemptAutomatic state = iota
	manualFallback
	done
)

// Recognizer drives one recognition per image through the states
// attempt-automatic → manual-fallback-once → done.
type Recognizer struct {
	model  Model
	gate   *Gate
	manual ManualEntry
	log    *zap.Logger
}

// NewRecognizer wires a model behind gate. manual is the default fallback
// used when Recognize is not given one.
func NewRecognizer(model Model, gate *Gate, manual ManualEntry, log *zap.Logger) *Recognizer {
	if gate == nil {
		gate = NewGate(DefaultInterval)
	}
	if manual == nil {
		manual = NoManualEntry{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recognizer{model: model, gate: gate, manual: manual, log: log}
}

// Recognize asks the model about one JPEG. It never returns a
// recognition failure: on failure the manual fallback runs exactly once
// and its list, possibly empty, is the result. The only error is a
// cancelled context, either while waiting for the gate or during the
// model call; the fallback does not run in that case.
func (r *Recognizer) Recognize(ctx context.Context, image string, jpeg []byte, manual ManualEntry) (models.RecognitionResult, error) {
	if manual == nil {
		manual = r.manual
	}

	release, err := r.gate.Acquire(ctx)
	if err != nil {
		return models.RecognitionResult{}, fmt.Errorf("wait for vision gate: %w", err)
	}
	defer release()

	var result models.RecognitionResult
	for st := attemptAutomatic; st != done; {
		switch st {
		case attemptAutomatic:
			entries, err := r.attempt(ctx, jpeg)
			if ctxErr := ctx.Err(); ctxErr != nil {
				// A cancelled call says nothing about the image.
				return models.RecognitionResult{}, fmt.Errorf("recognize %s: %w", image, ctxErr)
			}
			if err != nil {
				r.log.Warn("vision recognition failed, manual input required",
					zap.String("image", image), zap.Error(err))
				st = manualFallback
				continue
			}
			r.log.Info("vision recognized ingredients",
				zap.String("image", image), zap.Int("count", len(entries)))
			result = models.RecognitionResult{Ingredients: entries, Source: models.SourceVision}
			st = done

		case manualFallback:
			entries := manual.Collect(ctx, image)
			if entries == nil {
				entries = []models.IngredientEntry{}
			}
			r.log.Info("manual entry saved",
				zap.String("image", image), zap.Int("count", len(entries)))
			result = models.RecognitionResult{Ingredients: entries, Source: models.SourceManual}
			st = done
		}
	}
	return result, nil
}

func (r *Recognizer) attempt(ctx context.Context, jpeg []byte) ([]models.IngredientEntry, error) {
	if r.model == nil {
		return nil, fmt.Errorf("%w: no vision model configured", ErrRecognitionFailure)
	}
	text, err := r.model.Generate(ctx, Prompt, jpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailure, err)
	}
	return ParseIngredients(text)
}

// ParseIngredients accepts only a bare, non-empty JSON array whose
// elements are all objects. Surrounding whitespace is ignored; markdown
// fences or prose are not.
func ParseIngredients(text string) ([]models.IngredientEntry, error) {
	raw := bytes.TrimSpace([]byte(text))

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: response is not a JSON array: %v", ErrRecognitionFailure, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty ingredient array", ErrRecognitionFailure)
	}

	entries := make([]models.IngredientEntry, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrRecognitionFailure, i)
		}
		var e models.IngredientEntry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrRecognitionFailure, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
