package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/pkg/config"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
	"github.com/noah-isme/face-attendance-api/pkg/jobs"
)

const mailJobType = "attendance_email"

type mailSender interface {
	Send(to, subject, body string) error
	SendWithAttachment(to, subject, body, filename string, attachment []byte) error
}

type notifierStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type notifierClassReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
}

type notifierStatsReader interface {
	FindCounted(ctx context.Context, studentID, classID string, date time.Time) (*models.AttendanceRecord, error)
}

type rangeStatsProvider interface {
	DailyStats(ctx context.Context, classID string, date time.Time) (*models.DailyStats, error)
	RangeStats(ctx context.Context, classID string, from, to time.Time) ([]models.StudentRangeStats, error)
}

type dailySheetProvider interface {
	DailySheetBytes(ctx context.Context, classID string, date time.Time) ([]byte, string, error)
}

type emailMetrics interface {
	AddEmail(result string)
}

type emailPayload struct {
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}

// NotifierService composes and dispatches attendance emails. Sends go
// through an in-memory queue so HTTP handlers never wait on SMTP, and
// bulk sweeps are paced with a per-job delay.
type NotifierService struct {
	mailer   mailSender
	students notifierStudentReader
	classes  notifierClassReader
	records  notifierStatsReader
	stats    rangeStatsProvider
	sheets   dailySheetProvider
	metrics  emailMetrics
	cfg      config.MailConfig
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewNotifierService builds a NotifierService. Call Start before use.
func NewNotifierService(
	mailer mailSender,
	students notifierStudentReader,
	classes notifierClassReader,
	records notifierStatsReader,
	stats rangeStatsProvider,
	sheets dailySheetProvider,
	metrics emailMetrics,
	cfg config.MailConfig,
	logger *zap.Logger,
) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotifierService{
		mailer:   mailer,
		students: students,
		classes:  classes,
		records:  records,
		stats:    stats,
		sheets:   sheets,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
	s.queue = jobs.NewQueue("notifier", s.handleJob, jobs.QueueConfig{
		Workers: cfg.QueueWorkers,
		Logger:  logger,
	})
	return s
}

// Start launches the queue workers.
func (s *NotifierService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotifierService) Stop() {
	s.queue.Stop()
}

func (s *NotifierService) handleJob(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(emailPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	var err error
	if payload.AttachmentName != "" {
		err = s.mailer.SendWithAttachment(payload.To, payload.Subject, payload.Body, payload.AttachmentName, payload.Attachment)
	} else {
		err = s.mailer.Send(payload.To, payload.Subject, payload.Body)
	}
	if s.metrics != nil {
		result := "sent"
		if err != nil {
			result = "failed"
		}
		s.metrics.AddEmail(result)
	}
	if err != nil {
		return err
	}
	s.logger.Info("email sent", zap.String("to", payload.To), zap.String("subject", payload.Subject))
	return nil
}

func (s *NotifierService) enqueue(payload emailPayload, delay time.Duration) error {
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    mailJobType,
		Payload: payload,
		Delay:   delay,
	})
}

// SendAbsenceNotice emails a student who has no counted mark for the
// class day.
func (s *NotifierService) SendAbsenceNotice(ctx context.Context, studentID, classID string, date time.Time) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Email == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student has no email address")
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if _, err := s.records.FindCounted(ctx, studentID, classID, date); err == nil {
		return appErrors.Clone(appErrors.ErrValidation, "student is not absent on this day")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
	}

	subject := fmt.Sprintf("Absence Notice - %s - %s", class.Name, date.Format("2006-01-02"))
	body := fmt.Sprintf(
		"Dear %s,\n\nYou were marked absent for %s on %s.\nIf you believe this is incorrect, please contact your instructor.\n\nRegards,\nAttendance Office",
		student.FullName, class.Name, date.Format("Monday, 2 January 2006"))
	if err := s.enqueue(emailPayload{To: student.Email, Subject: subject, Body: body}, 0); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue email")
	}
	return nil
}

// SendLowAttendanceAlerts sweeps a class range and emails students
// whose attendance rate is below the configured threshold. Returns the
// number of queued alerts.
func (s *NotifierService) SendLowAttendanceAlerts(ctx context.Context, classID string, from, to time.Time) (int, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	stats, err := s.stats.RangeStats(ctx, classID, from, to)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, row := range stats {
		if row.AttendanceRate >= s.cfg.AlertThreshold {
			continue
		}
		student, err := s.students.FindByID(ctx, row.StudentID)
		if err != nil || student.Email == "" {
			s.logger.Warn("skipping low attendance alert",
				zap.String("student_id", row.StudentID),
				zap.Error(err))
			continue
		}
		subject := fmt.Sprintf("Low Attendance Alert - %s", class.Name)
		body := fmt.Sprintf(
			"Dear %s,\n\nYour attendance for %s between %s and %s is %.1f%%, below the required %.0f%%.\nPresent: %d  Late: %d  Excused: %d  Absent: %d (of %d working days)\n\nPlease improve your attendance to avoid academic penalties.\n\nRegards,\nAttendance Office",
			student.FullName, class.Name,
			from.Format("2006-01-02"), to.Format("2006-01-02"),
			row.AttendanceRate, s.cfg.AlertThreshold,
			row.Present, row.Late, row.Excused, row.Absent, row.WorkingDays)
		if err := s.enqueue(emailPayload{To: student.Email, Subject: subject, Body: body}, s.cfg.BulkSendDelay); err != nil {
			s.logger.Error("failed to queue alert", zap.String("student_id", row.StudentID), zap.Error(err))
			continue
		}
		queued++
	}
	return queued, nil
}

// SendDailySummary emails the class day summary to the recipient.
func (s *NotifierService) SendDailySummary(ctx context.Context, classID string, date time.Time, recipient string) error {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	stats, err := s.stats.DailyStats(ctx, classID, date)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Daily Attendance Summary - %s - %s", class.Name, date.Format("2006-01-02"))
	body := fmt.Sprintf(
		"Attendance summary for %s on %s:\n\nEnrolled: %d\nPresent: %d\nLate: %d\nExcused: %d\nAbsent: %d\nAttendance rate: %.1f%%\n",
		class.Name, date.Format("Monday, 2 January 2006"),
		stats.TotalEnrolled, stats.Present, stats.Late, stats.Excused, stats.Absent, stats.AttendanceRate)
	if err := s.enqueue(emailPayload{To: recipient, Subject: subject, Body: body}, 0); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue email")
	}
	return nil
}

// EmailDailyReport regenerates the class day sheet and emails it as an
// xlsx attachment.
func (s *NotifierService) EmailDailyReport(ctx context.Context, classID string, date time.Time, recipient string) error {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	data, filename, err := s.sheets.DailySheetBytes(ctx, classID, date)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Daily Attendance Sheet - %s - %s", class.Name, date.Format("2006-01-02"))
	body := fmt.Sprintf(
		"Attached is the attendance sheet for %s on %s.\n",
		class.Name, date.Format("Monday, 2 January 2006"))
	if err := s.enqueue(emailPayload{
		To:             recipient,
		Subject:        subject,
		Body:           body,
		AttachmentName: filename,
		Attachment:     data,
	}, 0); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue email")
	}
	return nil
}
