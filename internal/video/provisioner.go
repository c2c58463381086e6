// Package video abstracts videoconference provisioning for appointments.
// Provisioning is a side effect independent of the scheduling backend: a
// meeting is created before the remote booking call and torn down as the
// compensating action when that call fails.
package video

import (
	"context"
	"time"

	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

// Platform identifies how a provider runs video visits.
type Platform string

const (
	// PlatformZoom provisions a Zoom meeting per appointment.
	PlatformZoom Platform = "zoom"
	// PlatformPhone means the visit happens over the phone; no meeting.
	PlatformPhone Platform = "phone"
	// PlatformExternal means the provider shares a static external link and
	// manages their own notifications.
	PlatformExternal Platform = "external"
)

// NeedsProvisioning reports whether the platform requires a per-appointment
// meeting resource.
func (p Platform) NeedsProvisioning() bool { return p == PlatformZoom }

// HostAccount carries the provider-side credentials needed to provision.
type HostAccount struct {
	Platform    Platform
	HostID      string // platform user the meeting is created under
	ExternalURL string // static link for PlatformExternal
}

// Meeting is a provisioned conference resource.
type Meeting struct {
	ID         string
	JoinURL    string
	AccessCode string
}

// Window is the appointment time window the meeting should cover.
type Window struct {
	Start time.Time
	End   time.Time
}

// Provisioner creates and tears down meeting resources. No dedup key is
// kept internally; callers discard the first result if they retry.
type Provisioner interface {
	Provision(ctx context.Context, host HostAccount, title, attendeeEmail string, window Window) (*Meeting, error)
	// Deprovision is best-effort; failures must never block the caller's
	// larger operation.
	Deprovision(ctx context.Context, meetingID string) error
}

// StubProvisioner fabricates meetings locally. Used in development and tests.
type StubProvisioner struct {
	logger *logging.Logger
}

// NewStubProvisioner creates a stub provisioner.
func NewStubProvisioner(logger *logging.Logger) *StubProvisioner {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubProvisioner{logger: logger}
}

// Provision returns a deterministic fake meeting.
func (s *StubProvisioner) Provision(ctx context.Context, host HostAccount, title, attendeeEmail string, window Window) (*Meeting, error) {
	s.logger.Info("stub provisioner: would create meeting", "host", host.HostID, "title", title)
	return &Meeting{
		ID:         "stub-" + window.Start.UTC().Format("20060102T150405"),
		JoinURL:    "https://meet.invalid/stub",
		AccessCode: "000000",
	}, nil
}

// Deprovision logs and succeeds.
func (s *StubProvisioner) Deprovision(ctx context.Context, meetingID string) error {
	s.logger.Info("stub provisioner: would delete meeting", "meeting_id", meetingID)
	return nil
}

var _ Provisioner = (*StubProvisioner)(nil)
