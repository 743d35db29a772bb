// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"go.uber.org/zap"

	"meal-kcal/internal/calories"
	"meal-kcal/internal/enhance"
	"meal-kcal/internal/models"
	"meal-kcal/internal/pipeline"
)

type Config struct {
	Transport string
	Host      string
	Port      int
}

// ReportStore serves previously computed user reports.
type ReportStore interface {
	GetReport(ctx context.Context, userID string) (models.UserReport, error)
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type MealKcalServer struct {
	server     *server.Server
	httpServer *http.Server
	runner     *pipeline.Runner
	calc       *calories.Calculator
	reports    ReportStore
	tools      map[string]toolHandler
	log        *zap.Logger
	config     *Config
}

func NewMealKcalServer(cfg *Config, runner *pipeline.Runner, calc *calories.Calculator, reports ReportStore, log *zap.Logger) (*MealKcalServer, error) {
	s := newMealKcalServer(cfg, runner, calc, reports, log)

	// Create MCP server (without transport, we'll handle HTTP manually)
	mcpServer, err := server.NewServer(
		nil,
		server.WithServerInfo(protocol.Implementation{
			Name:    "meal-kcal",
			Version: "1.0.0",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	s.server = mcpServer

	return s, nil
}

func newMealKcalServer(cfg *Config, runner *pipeline.Runner, calc *calories.Calculator, reports ReportStore, log *zap.Logger) *MealKcalServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &MealKcalServer{
		runner:  runner,
		calc:    calc,
		reports: reports,
		log:     log,
		config:  cfg,
	}
	s.registerTools()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *MealKcalServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	result, err := handler(r.Context(), &request)
	if err != nil {
		s.log.Warn("tool call failed", zap.String("tool", request.Name), zap.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

func statusFor(err error) int {
	var decodeErr *enhance.ImageDecodeError
	switch {
	case errors.Is(err, errInvalidParams):
		return http.StatusBadRequest
	case errors.As(err, &decodeErr), errors.Is(err, pipeline.ErrAlreadyAttempted):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *MealKcalServer) Start(ctx context.Context) error {
	s.log.Info("starting meal kcal server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *MealKcalServer) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *MealKcalServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
