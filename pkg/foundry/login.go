package foundry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
)

var loginClient = &http.Client{Timeout: DefaultCallTimeout}

// Login performs the headless credential exchange with the relay and
// returns the session id of the freshly joined world. The relay drives the
// actual Foundry login; this side only hands over the credentials.
func Login(ctx context.Context, relayURL, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", fmt.Errorf("encode login: %w", err)
	}

	endpoint := httpBase(relayURL) + "/api/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := loginClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay login: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("relay login: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay login: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	sessionID := gjson.GetBytes(data, "sessionId").String()
	if sessionID == "" {
		return "", fmt.Errorf("relay login: reply carries no session id")
	}
	logger.Debug("headless login complete", "session", sessionID)
	return sessionID, nil
}

// httpBase maps the relay websocket URL onto its HTTP endpoint.
func httpBase(relayURL string) string {
	relayURL = strings.TrimSuffix(relayURL, "/")
	switch {
	case strings.HasPrefix(relayURL, "wss://"):
		return "https://" + strings.TrimPrefix(relayURL, "wss://")
	case strings.HasPrefix(relayURL, "ws://"):
		return "http://" + strings.TrimPrefix(relayURL, "ws://")
	}
	return relayURL
}
