// Package acuity integrates the Acuity Scheduling calendar SaaS as a
// booking backend. Acuity owns its own client notifications, so the
// orchestrator never double-notifies for appointments booked here.
package acuity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

const (
	defaultBaseURL = "https://acuityscheduling.com"
	defaultTimeout = 15 * time.Second
)

// Client wraps Acuity's REST API with basic-auth credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	apiKey     string
	logger     *logging.Logger
}

// NewClient constructs an Acuity REST client.
func NewClient(baseURL, userID, apiKey string, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// CreateAppointment books an appointment in Acuity.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	var resp Appointment
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/appointments", req, &resp); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &resp, nil
}

// CancelAppointment cancels an Acuity appointment by id.
func (c *Client) CancelAppointment(ctx context.Context, appointmentID int64, reason string) error {
	path := fmt.Sprintf("/api/v1/appointments/%d/cancel", appointmentID)
	body := map[string]string{"noteToClient": reason}
	if err := c.doJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	return nil
}

// ListAppointments returns upcoming appointments for a client email.
func (c *Client) ListAppointments(ctx context.Context, email string, from time.Time) ([]Appointment, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("minDate", from.Format("2006-01-02"))
	q.Set("canceled", "false")

	var appts []Appointment
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/appointments?"+q.Encode(), nil, &appts); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// statusError carries the HTTP status so the adapter can classify failures.
type statusError struct {
	status  int
	code    string
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("acuity API returned %d (%s): %s", e.status, e.code, e.message)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.userID, c.apiKey)
	req.Header.Set("Accept", "application/json")
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
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = string(respBody)
			if len(msg) > 300 {
				msg = msg[:300]
			}
		}
		c.logger.Warn("acuity API non-2xx response", "status", resp.StatusCode, "path", path, "message", msg)
		return &statusError{status: resp.StatusCode, code: apiErr.ErrorCode, message: msg}
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
