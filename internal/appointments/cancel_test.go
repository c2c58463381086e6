package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/telehealth-scheduling/internal/notify"
	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
)

func (e *testEnv) bookedAppointment(apptType *AppointmentType) *Appointment {
	start := testNow.Add(48 * time.Hour)
	return &Appointment{
		ID: uuid.New(), ProviderID: e.provider.ID, AccountID: e.account.ID,
		CreatorAccountID: e.account.ID, TypeID: apptType.ID, Backend: apptType.Backend,
		Start: start, End: start.Add(apptType.Duration), Timezone: "America/New_York",
		RemoteID: "REM-1", MeetingID: "meet-1", JoinURL: "https://meet.example/1",
		Attendance: AttendanceUnknown, CreatedAt: testNow,
	}
}

func TestCancelRemoteFailureStillCancelsLocally(t *testing.T) {
	env := newTestEnv(t, scheduling.VariantNative)
	env.backend.cancelErr = scheduling.Transient(errors.New("backend down"))
	appt := env.bookedAppointment(nativeType())

	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`SET canceled = true`).WithArgs(anyArgs(6)...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectExec(`UPDATE follow_up_tasks`).WithArgs(appt.ID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectCommit()

	err := env.orch.Cancel(context.Background(), CancelRequest{
		AppointmentID: appt.ID,
		CanceledBy:    env.account.ID,
		Reason:        "patient request",
	})
	if err != nil {
		t.Fatalf("local cancellation must succeed despite remote failure, got %v", err)
	}
	env.runner.Wait()

	if env.backend.cancelCalls != 1 {
		t.Fatalf("expected one remote cancel attempt, got %d", env.backend.cancelCalls)
	}
	if env.provisioner.deprovisions != 1 {
		t.Fatalf("expected meeting deprovision, got %d", env.provisioner.deprovisions)
	}
	if env.resyncer.count() != 1 {
		t.Fatalf("cancellation frees the slot and must resync availability, got %d", env.resyncer.count())
	}
	if msgs := env.dispatcher.sent(); len(msgs) != 1 || msgs[0].Template != notify.TemplateBookingCanceled {
		t.Fatalf("expected one cancel notice, got %+v", msgs)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCancelViaWebhookSkipsBackendCall(t *testing.T) {
	env := newTestEnv(t, scheduling.VariantEHR)
	appt := env.bookedAppointment(&AppointmentType{ID: uuid.New(), Duration: 30 * time.Minute, Backend: scheduling.VariantEHR})

	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`SET canceled = true`).WithArgs(anyArgs(6)...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectExec(`UPDATE follow_up_tasks`).WithArgs(appt.ID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectCommit()

	err := env.orch.Cancel(context.Background(), CancelRequest{
		AppointmentID:      appt.ID,
		Reason:             "canceled in EHR",
		ViaExternalWebhook: true,
	})
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	env.runner.Wait()

	if env.backend.cancelCalls != 0 {
		t.Fatalf("webhook cancel must not call the backend, got %d calls", env.backend.cancelCalls)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCancelAlreadyCanceledIsNoop(t *testing.T) {
	env := newTestEnv(t, scheduling.VariantNative)
	appt := env.bookedAppointment(nativeType())
	appt.Canceled = true
	now := testNow
	appt.CanceledAt = &now
	appt.Attendance = AttendanceCanceled

	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))

	if err := env.orch.Cancel(context.Background(), CancelRequest{AppointmentID: appt.ID}); err != nil {
		t.Fatalf("canceling a canceled appointment must be a no-op, got %v", err)
	}
	if env.backend.cancelCalls != 0 {
		t.Fatalf("no backend call expected, got %d", env.backend.cancelCalls)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRescheduleFailedCreateLeavesOriginalUntouched(t *testing.T) {
	env := newTestEnv(t, scheduling.VariantNative)
	env.backend.createRes = nil
	env.backend.createErr = scheduling.ErrSlotUnavailable
	apptType := nativeType()
	appt := env.bookedAppointment(apptType)

	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	env.expectType(apptType)
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	_, err := env.orch.Reschedule(context.Background(), appt.ID, testNow.Add(72*time.Hour), env.account.ID)
	if err == nil {
		t.Fatal("expected reschedule to fail when the replacement slot is unavailable")
	}
	// no cancel happened: no UPDATE expectations were registered and all
	// registered ones must be satisfied
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRescheduleLinksReplacement(t *testing.T) {
	env := newTestEnv(t, scheduling.VariantNative)
	env.backend.createRes = &scheduling.RemoteBooking{RemoteID: "REM-2"}
	apptType := nativeType()
	appt := env.bookedAppointment(apptType)

	// load original
	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	// create replacement
	env.expectType(apptType)
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`INSERT INTO appointments`).WithArgs(anyArgs(20)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectExec(`INSERT INTO follow_up_tasks`).WithArgs(anyArgs(3)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectCommit()
	// cancel original, linked to replacement
	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`SET canceled = true`).WithArgs(anyArgs(6)...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectExec(`UPDATE follow_up_tasks`).WithArgs(appt.ID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectCommit()

	replacement, err := env.orch.Reschedule(context.Background(), appt.ID, testNow.Add(72*time.Hour), env.account.ID)
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	env.runner.Wait()

	if replacement.RemoteID != "REM-2" {
		t.Fatalf("unexpected replacement: %+v", replacement)
	}
	// one confirmation for the new booking, one reschedule notice; the
	// cancellation half must not send its own notice
	msgs := env.dispatcher.sent()
	var confirmed, rescheduled, canceled int
	for _, m := range msgs {
		switch m.Template {
		case notify.TemplateBookingConfirmed:
			confirmed++
		case notify.TemplateBookingRescheduled:
			rescheduled++
		case notify.TemplateBookingCanceled:
			canceled++
		}
	}
	if confirmed != 1 || rescheduled != 1 || canceled != 0 {
		t.Fatalf("unexpected notifications: %+v", msgs)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// A calendar booking moved by the calendar SaaS must be moved in the
// local record too; canceling it would make the booking vanish, since
// only EHR accounts get a reconciliation pass.
func TestExternalRescheduleMovesCalendarBookingLocally(t *testing.T) {
	env := newTestEnv(t, scheduling.VariantCalendar)
	apptType := &AppointmentType{ID: uuid.New(), Title: "Therapy session", Duration: 50 * time.Minute, Backend: scheduling.VariantCalendar, RemoteID: "cal-11"}
	appt := env.bookedAppointment(apptType)
	newStart := testNow.Add(96 * time.Hour)

	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`SET start_at`).WithArgs(anyArgs(3)...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectCommit()

	if err := env.orch.ApplyExternalReschedule(context.Background(), appt.ID, newStart); err != nil {
		t.Fatalf("ApplyExternalReschedule error: %v", err)
	}
	env.runner.Wait()

	if env.backend.cancelCalls != 0 {
		t.Fatalf("the move already happened remotely, got %d cancel calls", env.backend.cancelCalls)
	}
	if env.provisioner.deprovisions != 0 {
		t.Fatalf("the meeting stays attached to the moved booking, got %d deprovisions", env.provisioner.deprovisions)
	}
	if env.resyncer.count() != 1 {
		t.Fatalf("expected one availability resync, got %d", env.resyncer.count())
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// An EHR booking moved remotely is canceled locally; the next
// reconciliation pass re-materializes it from the authoritative
// schedule under its new time.
func TestExternalRescheduleEHRCancelsForReconciliation(t *testing.T) {
	env := newTestEnv(t, scheduling.VariantEHR)
	appt := env.bookedAppointment(&AppointmentType{ID: uuid.New(), Duration: 45 * time.Minute, Backend: scheduling.VariantEHR, RemoteID: "562"})

	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	env.mock.ExpectBegin()
	env.mock.ExpectExec(`SET canceled = true`).WithArgs(anyArgs(6)...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectExec(`UPDATE follow_up_tasks`).WithArgs(appt.ID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	env.mock.ExpectExec(`INSERT INTO audit_entries`).WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	env.mock.ExpectCommit()

	if err := env.orch.ApplyExternalReschedule(context.Background(), appt.ID, testNow.Add(96*time.Hour)); err != nil {
		t.Fatalf("ApplyExternalReschedule error: %v", err)
	}
	env.runner.Wait()

	if env.backend.cancelCalls != 0 {
		t.Fatalf("the remote side already moved the booking, got %d cancel calls", env.backend.cancelCalls)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetAttendanceTransitions(t *testing.T) {
	env := newTestEnv(t, scheduling.VariantNative)
	appt := env.bookedAppointment(nativeType())

	// unknown -> attended
	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	env.mock.ExpectExec(`SET attendance`).WithArgs(anyArgs(2)...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := env.orch.SetAttendance(context.Background(), appt.ID, AttendanceAttended); err != nil {
		t.Fatalf("SetAttendance error: %v", err)
	}

	// attended -> attended is a no-op
	appt.Attendance = AttendanceAttended
	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	if err := env.orch.SetAttendance(context.Background(), appt.ID, AttendanceAttended); err != nil {
		t.Fatalf("idempotent transition must succeed, got %v", err)
	}

	// attended -> no_show is rejected
	env.mock.ExpectQuery(`FROM appointments`).WithArgs(appt.ID).WillReturnRows(apptRows(appt))
	if err := env.orch.SetAttendance(context.Background(), appt.ID, AttendanceNoShow); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
