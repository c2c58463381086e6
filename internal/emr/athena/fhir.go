package athena

import (
	"fmt"
	"strings"
	"time"
)

// FHIR R4 resource types, reduced to the fields the scheduling flows use.

// FHIRBundle is the search-result envelope
type FHIRBundle struct {
	ResourceType string      `json:"resourceType"`
	Type         string      `json:"type"`
	Total        int         `json:"total"`
	Entry        []FHIREntry `json:"entry"`
}

// FHIREntry wraps a single resource in a bundle
type FHIREntry struct {
	Resource FHIRAppointment `json:"resource"`
}

// FHIRAppointment is the Appointment resource
type FHIRAppointment struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Status       string            `json:"status"` // proposed | booked | cancelled | fulfilled | noshow
	ServiceType  []FHIRConcept     `json:"serviceType,omitempty"`
	Start        string            `json:"start"`
	End          string            `json:"end"`
	Comment      string            `json:"comment,omitempty"`
	Participant  []FHIRParticipant `json:"participant"`
}

// FHIRParticipant links an appointment to a patient or practitioner
type FHIRParticipant struct {
	Actor  FHIRReference `json:"actor"`
	Status string        `json:"status"` // accepted | declined | tentative | needs-action
}

// FHIRReference points at another resource, e.g. "Patient/a-1959.E-4521"
type FHIRReference struct {
	Reference string `json:"reference"`
	Display   string `json:"display,omitempty"`
}

// FHIRConcept is a CodeableConcept
type FHIRConcept struct {
	Coding []FHIRCoding `json:"coding,omitempty"`
	Text   string       `json:"text,omitempty"`
}

// FHIRCoding is a single code within a concept
type FHIRCoding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// FHIROperationOutcome is the error resource returned on failures
type FHIROperationOutcome struct {
	ResourceType string `json:"resourceType"`
	Issue        []struct {
		Severity    string `json:"severity"`
		Code        string `json:"code"`
		Diagnostics string `json:"diagnostics"`
	} `json:"issue"`
}

func (o *FHIROperationOutcome) message() string {
	parts := make([]string, 0, len(o.Issue))
	for _, issue := range o.Issue {
		if issue.Diagnostics != "" {
			parts = append(parts, issue.Diagnostics)
		} else if issue.Code != "" {
			parts = append(parts, issue.Code)
		}
	}
	return strings.Join(parts, "; ")
}

// parseFHIRTime handles the instant formats Athena emits, with and
// without sub-second precision.
func parseFHIRTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z07:00", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized FHIR instant %q", s)
}

// referenceID strips the resource-type prefix from a FHIR reference.
// "Patient/a-1959.E-4521" becomes "a-1959.E-4521".
func referenceID(ref string) string {
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// participantID finds the actor id for the given resource type prefix.
func participantID(participants []FHIRParticipant, resourceType string) string {
	prefix := resourceType + "/"
	for _, p := range participants {
		if strings.HasPrefix(p.Actor.Reference, prefix) {
			return referenceID(p.Actor.Reference)
		}
	}
	return ""
}

// serviceTypeCode returns the first coded value of the appointment's
// service type, falling back to the concept text.
func serviceTypeCode(concepts []FHIRConcept) string {
	for _, c := range concepts {
		for _, coding := range c.Coding {
			if coding.Code != "" {
				return coding.Code
			}
		}
		if c.Text != "" {
			return c.Text
		}
	}
	return ""
}
