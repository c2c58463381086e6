// Package zoom provisions per-appointment Zoom meetings through the
// Zoom REST API using server-to-server JWT auth.
package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/telehealth-scheduling/internal/video"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

const (
	defaultBaseURL = "https://api.zoom.us/v2"
	defaultTimeout = 15 * time.Second
	tokenLifetime  = 90 * time.Second

	// meetingTypeScheduled is Zoom's type code for a scheduled meeting.
	meetingTypeScheduled = 2
)

// Client calls the Zoom meetings API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	logger     *logging.Logger
	now        func() time.Time
}

// NewClient constructs a Zoom API client.
func NewClient(baseURL, apiKey, apiSecret string, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		logger:     logger.Component("zoom"),
		now:        time.Now,
	}
}

// signToken mints a short-lived HS256 token for a single API call.
func (c *Client) signToken() (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.apiKey,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type meetingRequest struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"`
	StartTime string          `json:"start_time"`
	Duration  int             `json:"duration"` // minutes
	Timezone  string          `json:"timezone,omitempty"`
	Settings  meetingSettings `json:"settings"`
}

type meetingSettings struct {
	JoinBeforeHost bool   `json:"join_before_host"`
	WaitingRoom    bool   `json:"waiting_room"`
	Audio          string `json:"audio"`
}

type meetingResponse struct {
	ID       int64  `json:"id"`
	JoinURL  string `json:"join_url"`
	Password string `json:"password"`
}

// Provision creates a scheduled meeting under the host's Zoom user.
func (c *Client) Provision(ctx context.Context, host video.HostAccount, title, attendeeEmail string, window video.Window) (*video.Meeting, error) {
	duration := int(window.End.Sub(window.Start).Minutes())
	if duration <= 0 {
		duration = 30
	}
	req := meetingRequest{
		Topic:     title,
		Type:      meetingTypeScheduled,
		StartTime: window.Start.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  duration,
		Settings: meetingSettings{
			WaitingRoom: true,
			Audio:       "both",
		},
	}

	var resp meetingResponse
	path := "/users/" + url.PathEscape(host.HostID) + "/meetings"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("provision meeting: %w", err)
	}

	c.logger.Info("zoom meeting provisioned", "host", host.HostID, "meeting_id", resp.ID)
	return &video.Meeting{
		ID:         strconv.FormatInt(resp.ID, 10),
		JoinURL:    resp.JoinURL,
		AccessCode: resp.Password,
	}, nil
}

// Deprovision deletes the meeting. A meeting Zoom no longer has counts
// as deprovisioned.
func (c *Client) Deprovision(ctx context.Context, meetingID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/meetings/"+url.PathEscape(meetingID), nil, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			c.logger.Debug("zoom meeting already gone", "meeting_id", meetingID)
			return nil
		}
		return fmt.Errorf("deprovision meeting: %w", err)
	}
	return nil
}

type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("zoom API returned %d: %s", e.status, e.message)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.signToken()
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = string(respBody)
			if len(msg) > 300 {
				msg = msg[:300]
			}
		}
		c.logger.Warn("zoom API non-2xx response", "status", resp.StatusCode, "path", path, "message", msg)
		return &statusError{status: resp.StatusCode, message: msg}
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ video.Provisioner = (*Client)(nil)
