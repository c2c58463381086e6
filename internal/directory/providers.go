package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/internal/video"
)

// SupportFlags are the provider-level booking rules the orchestrator
// enforces.
type SupportFlags struct {
	// RequiresPhone rejects bookings from accounts without a phone number.
	RequiresPhone bool
	// IntakeGated requires a passing intake assessment before 1:1 booking.
	IntakeGated bool
}

// Provider is a bookable clinician.
type Provider struct {
	ID               uuid.UUID
	DisplayName      string
	Email            string
	Timezone         string
	VideoPlatform    video.Platform
	VideoHostID      string
	ExternalJoinURL  string
	EHRProviderID    string
	AcuityCalendarID string
	Flags            SupportFlags
}

// RemoteID returns the provider's handle in the given backend.
func (p *Provider) RemoteID(v scheduling.Variant) string {
	switch v {
	case scheduling.VariantEHR:
		return p.EHRProviderID
	case scheduling.VariantCalendar:
		return p.AcuityCalendarID
	}
	return p.ID.String()
}

// VideoconferenceCredentials returns the host account used to provision a
// meeting for this provider.
func (p *Provider) VideoconferenceCredentials() video.HostAccount {
	return video.HostAccount{
		Platform:    p.VideoPlatform,
		HostID:      p.VideoHostID,
		ExternalURL: p.ExternalJoinURL,
	}
}

// ProviderRepository reads providers.
type ProviderRepository struct {
	db DBTX
}

// NewProviderRepository creates a provider repository.
func NewProviderRepository(db DBTX) *ProviderRepository {
	if db == nil {
		panic("directory: db required")
	}
	return &ProviderRepository{db: db}
}

const providerColumns = `id, display_name, email, timezone, video_platform, video_host_id, external_join_url, ehr_provider_id, acuity_calendar_id, requires_phone, intake_gated`

// FindByID loads one provider.
func (r *ProviderRepository) FindByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	return scanProvider(row)
}

// FindByRemoteID resolves a provider from a backend-specific handle. The
// reconciliation engine uses it to map remote schedule entries back to
// local providers.
func (r *ProviderRepository) FindByRemoteID(ctx context.Context, variant scheduling.Variant, remoteID string) (*Provider, error) {
	var column string
	switch variant {
	case scheduling.VariantEHR:
		column = "ehr_provider_id"
	case scheduling.VariantCalendar:
		column = "acuity_calendar_id"
	default:
		id, err := uuid.Parse(remoteID)
		if err != nil {
			return nil, ErrNotFound
		}
		return r.FindByID(ctx, id)
	}
	row := r.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE `+column+` = $1`, remoteID)
	return scanProvider(row)
}

// FindSupportRoleFlags returns only the booking rule flags.
func (r *ProviderRepository) FindSupportRoleFlags(ctx context.Context, id uuid.UUID) (SupportFlags, error) {
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return SupportFlags{}, err
	}
	return p.Flags, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var platform string
	err := row.Scan(&p.ID, &p.DisplayName, &p.Email, &p.Timezone, &platform,
		&p.VideoHostID, &p.ExternalJoinURL, &p.EHRProviderID, &p.AcuityCalendarID,
		&p.Flags.RequiresPhone, &p.Flags.IntakeGated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: scan provider: %w", err)
	}
	p.VideoPlatform = video.Platform(platform)
	return &p, nil
}
