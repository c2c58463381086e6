// Package athena implements the EHR scheduling client against Athena's
// FHIR R4 API. Appointments booked here live in the hospital's Athena
// tenant; the engine mirrors them locally and reconciles on read.
package athena

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/telehealth-scheduling/internal/emr"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

const (
	defaultTimeout = 20 * time.Second

	// Token refresh happens this long before actual expiry so in-flight
	// requests never race the cutoff.
	tokenExpiryMargin = 60 * time.Second
)

// Config holds Athena API connection settings.
type Config struct {
	BaseURL      string // e.g. https://api.preview.platform.athenahealth.com
	TokenURL     string // OAuth2 token endpoint, defaults to BaseURL + /oauth2/v1/token
	ClientID     string
	ClientSecret string
	PracticeID   string // Athena practice (tenant) identifier
	Timeout      time.Duration
}

// Client talks to Athena's FHIR API with client-credentials OAuth.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *logging.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient constructs an Athena FHIR client.
func NewClient(config Config, logger *logging.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.TokenURL == "" {
		config.TokenURL = strings.TrimRight(config.BaseURL, "/") + "/oauth2/v1/token"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger.Component("athena"),
	}
}

// ensureAuthenticated fetches or refreshes the OAuth access token.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "system/Appointment.read system/Appointment.write")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("token request returned %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.logger.Debug("athena token refreshed", "expires_in_s", tokenResp.ExpiresIn)
	return nil
}

// CreateAppointment books an appointment via POST /Appointment.
func (c *Client) CreateAppointment(ctx context.Context, req emr.AppointmentRequest) (*emr.Appointment, error) {
	fhirAppt := FHIRAppointment{
		ResourceType: "Appointment",
		Status:       "booked",
		Start:        req.StartTime.UTC().Format(time.RFC3339),
		End:          req.EndTime.UTC().Format(time.RFC3339),
		Comment:      req.Notes,
		Participant: []FHIRParticipant{
			{Actor: FHIRReference{Reference: "Patient/" + req.PatientID}, Status: "accepted"},
			{Actor: FHIRReference{Reference: "Practitioner/" + req.ProviderID}, Status: "accepted"},
		},
	}
	if req.VisitTypeID != "" {
		fhirAppt.ServiceType = []FHIRConcept{{Coding: []FHIRCoding{{Code: req.VisitTypeID}}}}
	}

	var created FHIRAppointment
	if err := c.doFHIR(ctx, http.MethodPost, "/Appointment", fhirAppt, &created); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	appt, err := c.toAppointment(created)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return appt, nil
}

// CancelAppointment transitions the Athena appointment to cancelled.
// Athena cancels through a status update rather than a DELETE.
func (c *Client) CancelAppointment(ctx context.Context, appointmentID, reason string) error {
	var current FHIRAppointment
	if err := c.doFHIR(ctx, http.MethodGet, "/Appointment/"+url.PathEscape(appointmentID), nil, &current); err != nil {
		return fmt.Errorf("cancel appointment: fetch: %w", err)
	}
	if current.Status == "cancelled" {
		return nil
	}

	current.Status = "cancelled"
	if reason != "" {
		current.Comment = reason
	}
	if err := c.doFHIR(ctx, http.MethodPut, "/Appointment/"+url.PathEscape(appointmentID), current, nil); err != nil {
		return fmt.Errorf("cancel appointment: update: %w", err)
	}
	return nil
}

// ListPatientAppointments searches booked appointments for the patient
// in the date window.
func (c *Client) ListPatientAppointments(ctx context.Context, patientID string, from, to time.Time) ([]emr.Appointment, error) {
	q := url.Values{}
	q.Set("patient", patientID)
	q.Set("date", "ge"+from.UTC().Format("2006-01-02"))
	if !to.IsZero() {
		q.Add("date", "le"+to.UTC().Format("2006-01-02"))
	}
	q.Set("status", "booked")

	var bundle FHIRBundle
	if err := c.doFHIR(ctx, http.MethodGet, "/Appointment?"+q.Encode(), nil, &bundle); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	appts := make([]emr.Appointment, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		appt, err := c.toAppointment(entry.Resource)
		if err != nil {
			c.logger.Warn("skipping unparseable athena appointment", "id", entry.Resource.ID, "error", err)
			continue
		}
		appts = append(appts, *appt)
	}
	return appts, nil
}

func (c *Client) toAppointment(f FHIRAppointment) (*emr.Appointment, error) {
	start, err := parseFHIRTime(f.Start)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: start: %w", f.ID, err)
	}
	end, err := parseFHIRTime(f.End)
	if err != nil {
		end = start
	}
	return &emr.Appointment{
		ID:          f.ID,
		PatientID:   participantID(f.Participant, "Patient"),
		ProviderID:  participantID(f.Participant, "Practitioner"),
		VisitTypeID: serviceTypeCode(f.ServiceType),
		StartTime:   start,
		EndTime:     end,
		Status:      f.Status,
		Notes:       f.Comment,
	}, nil
}

// statusError carries the HTTP status so the adapter can classify failures.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("athena API returned %d: %s", e.status, e.message)
}

func (c *Client) doFHIR(ctx context.Context, method, path string, body any, out any) error {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/fhir/r4/%s%s", c.config.BaseURL, c.config.PracticeID, path)

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
	c.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	c.mu.Unlock()
	req.Header.Set("Accept", "application/fhir+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/fhir+json")
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
		var outcome FHIROperationOutcome
		_ = json.Unmarshal(respBody, &outcome)
		msg := outcome.message()
		if msg == "" {
			msg = string(respBody)
			if len(msg) > 300 {
				msg = msg[:300]
			}
		}
		c.logger.Warn("athena API non-2xx response", "status", resp.StatusCode, "path", path, "message", msg)
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

var _ emr.Client = (*Client)(nil)
