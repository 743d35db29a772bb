// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"go.uber.org/zap"

	"meal-kcal/internal/models"
	"meal-kcal/internal/vision"
)

var errInvalidParams = errors.New("invalid parameters")

type EstimateMealParams struct {
	ImagePath   string                   `json:"image_path" description:"Path of the meal photo on the server"`
	Ingredients []models.IngredientEntry `json:"ingredients,omitempty" description:"Ingredients to use if the photo cannot be recognized"`
}

type CalculateKcalParams struct {
	Ingredients []models.IngredientEntry `json:"ingredients" description:"Ingredients with gram amounts"`
}

type GetUserReportParams struct {
	UserID string `json:"user_id" description:"User ID from the linked dataset"`
}

type EstimateMealResult struct {
	Recognition models.RecognitionRecord `json:"recognition"`
	Kcal        float64                  `json:"kcal"`
	Detail      []models.NormalizedEntry `json:"detail"`
}

type CalculateKcalResult struct {
	Kcal   float64                  `json:"kcal"`
	Detail []models.NormalizedEntry `json:"detail"`
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}

	return nil
}

// handleEstimateMeal recognizes one photo and prices its ingredients.
func (s *MealKcalServer) handleEstimateMeal(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params EstimateMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	params.ImagePath = strings.TrimSpace(params.ImagePath)
	if params.ImagePath == "" {
		return nil, fmt.Errorf("%w: image_path is required", errInvalidParams)
	}

	// No operator sits behind a tool call; the caller's list is the fallback.
	var manual vision.ManualEntry = vision.NoManualEntry{}
	if params.Ingredients != nil {
		manual = vision.PresetEntry(params.Ingredients)
	}

	rec, kcal, detail, err := s.runner.EstimateImage(ctx, params.ImagePath, manual)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate meal: %w", err)
	}
	return s.createJSONResponse(EstimateMealResult{Recognition: rec, Kcal: kcal, Detail: detail})
}

// handleCalculateKcal prices an ingredient list without any image.
func (s *MealKcalServer) handleCalculateKcal(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params CalculateKcalParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	kcal, detail := s.calc.ComputeKcal(ctx, params.Ingredients)
	return s.createJSONResponse(CalculateKcalResult{Kcal: kcal, Detail: detail})
}

func (s *MealKcalServer) handleGetUserReport(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetUserReportParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", errInvalidParams)
	}

	report, err := s.reports.GetReport(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve report: %w", err)
	}
	return s.createJSONResponse(report)
}

func (s *MealKcalServer) registerTools() {
	s.tools = map[string]toolHandler{
		"estimate_meal":   s.handleEstimateMeal,
		"calculate_kcal":  s.handleCalculateKcal,
		"get_user_report": s.handleGetUserReport,
	}
	for name := range s.tools {
		s.log.Debug("registered tool", zap.String("tool", name))
	}
}
