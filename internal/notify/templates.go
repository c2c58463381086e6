package notify

import "fmt"

// Render builds the outgoing email for a queued message.
func Render(msg Message) (EmailMessage, error) {
	switch msg.Template {
	case TemplateBookingConfirmed:
		return renderConfirmed(msg), nil
	case TemplateBookingCanceled:
		return renderCanceled(msg), nil
	case TemplateBookingRescheduled:
		return renderRescheduled(msg), nil
	default:
		return EmailMessage{}, fmt.Errorf("notify: unknown template %q", msg.Template)
	}
}

func renderConfirmed(msg Message) EmailMessage {
	joinInfo := ""
	if msg.JoinURL != "" {
		joinInfo = fmt.Sprintf("\n\nJoin your video visit: %s", msg.JoinURL)
		if msg.AccessCode != "" {
			joinInfo += fmt.Sprintf("\nAccess code: %s", msg.AccessCode)
		}
	}
	body := fmt.Sprintf(`Hi %s,

Your %s with %s is confirmed for %s.%s

If you need to cancel or reschedule, please do so at least 24 hours in advance.`,
		msg.RecipientName, msg.VisitType, msg.ProviderName, msg.localStart(msg.Start), joinInfo)

	return EmailMessage{
		To:      msg.RecipientEmail,
		ToName:  msg.RecipientName,
		Subject: fmt.Sprintf("Appointment confirmed: %s", msg.localStart(msg.Start)),
		Body:    body,
	}
}

func renderCanceled(msg Message) EmailMessage {
	body := fmt.Sprintf(`Hi %s,

Your %s with %s on %s has been canceled.

If this was a mistake, please book a new appointment.`,
		msg.RecipientName, msg.VisitType, msg.ProviderName, msg.localStart(msg.Start))

	return EmailMessage{
		To:      msg.RecipientEmail,
		ToName:  msg.RecipientName,
		Subject: "Appointment canceled",
		Body:    body,
	}
}

func renderRescheduled(msg Message) EmailMessage {
	joinInfo := ""
	if msg.JoinURL != "" {
		joinInfo = fmt.Sprintf("\n\nJoin your video visit: %s", msg.JoinURL)
	}
	body := fmt.Sprintf(`Hi %s,

Your %s with %s has been moved from %s to %s.%s`,
		msg.RecipientName, msg.VisitType, msg.ProviderName,
		msg.localStart(msg.Start), msg.localStart(msg.NewStart), joinInfo)

	return EmailMessage{
		To:      msg.RecipientEmail,
		ToName:  msg.RecipientName,
		Subject: fmt.Sprintf("Appointment rescheduled: %s", msg.localStart(msg.NewStart)),
		Body:    body,
	}
}
