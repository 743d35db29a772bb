// internal/vision/gateway.go
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultGatewayURL   = "http://mcp-compose-http-proxy:9876"
	DefaultGatewayModel = "google/gemini-2.5-flash"
)

// GatewayModel sends the image as a data URI to a completion tool exposed
// by an MCP HTTP proxy.
type GatewayModel struct {
	httpClient *http.Client
	proxyURL   string
	apiKey     string
	model      string
}

func NewGatewayModel(proxyURL, apiKey, model string) *GatewayModel {
	if proxyURL == "" {
		proxyURL = DefaultGatewayURL
	}
	if model == "" {
		model = DefaultGatewayModel
	}
	return &GatewayModel{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		proxyURL: proxyURL,
		apiKey:   apiKey,
		model:    model,
	}
}

// DataURI encodes a JPEG as an inline base64 data URI.
func DataURI(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

func (g *GatewayModel) Generate(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	completionRequest := map[string]interface{}{
		"model": g.model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": DataURI(jpeg)}},
				},
			},
		},
		"max_tokens":  1000,
		"temperature": 0.0,
	}

	gatewayResponse, err := g.callGateway(ctx, "create_completion", completionRequest)
	if err != nil {
		return "", fmt.Errorf("failed to get AI completion: %w", err)
	}
	return completionContent(gatewayResponse), nil
}

func (g *GatewayModel) callGateway(ctx context.Context, toolName string, args interface{}) (string, error) {
	url := fmt.Sprintf("%s/openrouter-gateway", g.proxyURL)

	requestData := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      toolName,
			"arguments": args,
		},
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("request failed with status %d and couldn't read body: %v", resp.StatusCode, err)
		}
		return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var mcpResponse struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mcpResponse); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if mcpResponse.Error != nil {
		return "", fmt.Errorf("gateway error %d: %s", mcpResponse.Error.Code, mcpResponse.Error.Message)
	}
	if len(mcpResponse.Result.Content) == 0 {
		return "", fmt.Errorf("unexpected response format")
	}
	return mcpResponse.Result.Content[0].Text, nil
}

// completionContent unwraps the gateway's {"content": "..."} completion
// envelope. Text that is not such an envelope is returned unchanged and
// left for the strict parser to judge.
func completionContent(text string) string {
	var completion struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal([]byte(text), &completion); err != nil || completion.Content == nil {
		return text
	}
	return *completion.Content
}
