package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/lalith-99/chatcore/internal/models"
	"go.uber.org/zap"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the base URL of the chat backend (e.g. "http://localhost:8081").
	BaseURL string
	// Token is the session token attached as a bearer credential. Empty for
	// the unauthenticated endpoints (register, login).
	Token string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, zap.NewNop() is used.
	Logger *zap.Logger
}

// Client talks to the chat backend's REST surface. It implements every
// backend service interface; the engine holds it through those interfaces.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Interface conformance is checked at compile time.
var (
	_ RoomService          = (*Client)(nil)
	_ MessageService       = (*Client)(nil)
	_ MembershipService    = (*Client)(nil)
	_ AccessRequestService = (*Client)(nil)
	_ UserService          = (*Client)(nil)
)

// NewClient creates a backend client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("backend: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("backend: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithToken returns a copy of the client carrying the given session token.
// The HTTP transport is shared.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// doRequest performs a request and returns the response body. On 2xx the
// body is returned; on an error status the body is decoded into *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("backend: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("backend: create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var apiErr APIError
	if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr != nil || apiErr.Code == "" {
		return nil, fmt.Errorf("backend: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	apiErr.StatusCode = response.StatusCode
	return responseBody, &apiErr
}

// getJSON performs a GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend: parse response from %s: %w", path, err)
	}
	return nil
}

// postJSON performs a POST and decodes the response into out (out may be nil).
func (c *Client) postJSON(ctx context.Context, path string, requestBody, out any) error {
	body, err := c.doRequest(ctx, http.MethodPost, path, requestBody)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend: parse response from %s: %w", path, err)
	}
	return nil
}

// ListRooms implements RoomService.
func (c *Client) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms := make([]models.Room, 0)
	if err := c.getJSON(ctx, "/rooms", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoom implements RoomService.
func (c *Client) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	var room models.Room
	payload := map[string]string{"name": name}
	if err := c.postJSON(ctx, "/room", payload, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoom implements RoomService. The caller's identity travels in the
// body so the backend can re-check the asserted capability.
func (c *Client) DeleteRoom(ctx context.Context, roomID string, caller models.User) error {
	payload := map[string]string{
		"userId":     caller.ID,
		"capability": string(caller.Capability),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("backend: encode request body: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/room/"+url.PathEscape(roomID), bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("backend: DELETE /room/%s: %w", roomID, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	responseBody, _ := io.ReadAll(response.Body)
	var apiErr APIError
	if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr != nil || apiErr.Code == "" {
		return fmt.Errorf("backend: unexpected %d response deleting room %s: %s",
			response.StatusCode, roomID, string(responseBody))
	}
	apiErr.StatusCode = response.StatusCode
	return &apiErr
}

// ListMessages implements MessageService. History arrives oldest first.
func (c *Client) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	payloads := make([]MessagePayload, 0)
	if err := c.getJSON(ctx, "/messages/"+url.PathEscape(roomID), &payloads); err != nil {
		return nil, err
	}
	messages := make([]models.Message, 0, len(payloads))
	for _, p := range payloads {
		messages = append(messages, p.Model())
	}
	return messages, nil
}

// CreateMessage implements MessageService.
func (c *Client) CreateMessage(ctx context.Context, out OutgoingMessage) (*models.Message, error) {
	var payload MessagePayload
	if err := c.postJSON(ctx, "/message", out, &payload); err != nil {
		return nil, err
	}
	msg := payload.Model()
	return &msg, nil
}

// GrantMembership implements MembershipService.
func (c *Client) GrantMembership(ctx context.Context, roomID, userID string) error {
	payload := map[string]string{"roomId": roomID, "userId": userID}
	return c.postJSON(ctx, "/room-members", payload, nil)
}

// ListRequests implements AccessRequestService.
func (c *Client) ListRequests(ctx context.Context, roomID string) ([]models.AccessRequest, error) {
	requests := make([]models.AccessRequest, 0)
	if err := c.getJSON(ctx, "/room-access-request/"+url.PathEscape(roomID), &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// CreateRequest implements AccessRequestService.
func (c *Client) CreateRequest(ctx context.Context, roomID, userID string) (*models.AccessRequest, error) {
	var request models.AccessRequest
	payload := map[string]string{"roomId": roomID, "userId": userID}
	if err := c.postJSON(ctx, "/room-access-request", payload, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

// ApproveRequest implements AccessRequestService.
func (c *Client) ApproveRequest(ctx context.Context, requestID string) error {
	return c.postJSON(ctx, "/room-access-request/approve/"+url.PathEscape(requestID), nil, nil)
}

// DenyRequest implements AccessRequestService.
func (c *Client) DenyRequest(ctx context.Context, requestID string) error {
	return c.postJSON(ctx, "/room-access-request/deny/"+url.PathEscape(requestID), nil, nil)
}

// ListUsers implements UserService.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0)
	if err := c.getJSON(ctx, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// RegisterUser implements UserService.
func (c *Client) RegisterUser(ctx context.Context, displayName string) (*models.User, error) {
	var user models.User
	payload := map[string]string{"displayName": displayName}
	if err := c.postJSON(ctx, "/users", payload, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login implements UserService.
func (c *Client) Login(ctx context.Context, displayName string) (*LoginResult, error) {
	var result LoginResult
	payload := map[string]string{"displayName": displayName}
	if err := c.postJSON(ctx, "/login", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
