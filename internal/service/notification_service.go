package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"banking_ledger/internal/domain"
)

type NotificationType string

const (
	NotificationEmail NotificationType = "email"
	NotificationSMS   NotificationType = "sms"
	NotificationSlack NotificationType = "slack"
)

var ErrServiceStopped = errors.New("notification service stopped")

type EmailService interface {
	SendEmail(to, subject, body string) error
}

type SMSService interface {
	SendSMS(to, message string) error
}

type SlackService interface {
	SendMessage(channel, message string) error
}

type NotificationMessage struct {
	Type      NotificationType
	Recipient string
	Subject   string
	Message   string
	Priority  int
	Metadata  map[string]string
	CreatedAt time.Time
}

// Recipients says where fraud alerts go. Empty fields disable a channel.
type Recipients struct {
	SecurityEmail string
	SlackChannel  string
	OnCallPhone   string
}

type NotificationService struct {
	emailService EmailService
	smsService   SMSService
	slackService SlackService
	recipients   Recipients
	messageQueue chan NotificationMessage
	workers      int
	shutdownChan chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewNotificationService(
	emailService EmailService,
	smsService SMSService,
	slackService SlackService,
	recipients Recipients,
	workers int,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	service := &NotificationService{
		emailService: emailService,
		smsService:   smsService,
		slackService: slackService,
		recipients:   recipients,
		messageQueue: make(chan NotificationMessage, 1000),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

// NotifyFraudAlert queues one message per configured channel for a
// blocked transaction.
func (s *NotificationService) NotifyFraudAlert(ctx context.Context, tx *domain.Transaction, alert *domain.FraudAlert) error {
	severity := string(alert.RiskLevel)
	message := fmt.Sprintf(
		"Fraud Alert\nTransaction ID: %s\nAmount: %s %s\nRisk Score: %d\nRules: %s\nStatus: %s",
		tx.ID, tx.Amount.StringFixed(2), tx.Currency, alert.RiskScore, strings.Join(alert.Rules, ", "), tx.Status,
	)
	metadata := map[string]string{
		"transaction_id": tx.ID,
		"alert_id":       alert.ID,
		"severity":       severity,
		"risk_score":     fmt.Sprintf("%d", alert.RiskScore),
	}

	var notifications []NotificationMessage
	if s.recipients.SlackChannel != "" {
		notifications = append(notifications, NotificationMessage{
			Type:      NotificationSlack,
			Recipient: s.recipients.SlackChannel,
			Subject:   fmt.Sprintf("Fraud Alert - %s", severity),
			Message:   message,
			Priority:  10,
			Metadata:  metadata,
			CreatedAt: time.Now(),
		})
	}
	if s.recipients.SecurityEmail != "" {
		notifications = append(notifications, NotificationMessage{
			Type:      NotificationEmail,
			Recipient: s.recipients.SecurityEmail,
			Subject:   fmt.Sprintf("Fraud Alert: %s - %s", severity, tx.ID),
			Message:   message,
			Priority:  10,
			Metadata:  metadata,
			CreatedAt: time.Now(),
		})
	}
	if s.recipients.OnCallPhone != "" && alert.RiskLevel == domain.RiskCritical {
		notifications = append(notifications, NotificationMessage{
			Type:      NotificationSMS,
			Recipient: s.recipients.OnCallPhone,
			Message:   fmt.Sprintf("CRITICAL fraud alert on %s (%s %s)", tx.ID, tx.Amount.StringFixed(2), tx.Currency),
			Priority:  10,
			Metadata:  metadata,
			CreatedAt: time.Now(),
		})
	}

	for _, notification := range notifications {
		select {
		case s.messageQueue <- notification:
			s.logger.WarnContext(ctx, "Fraud alert notification queued",
				slog.String("type", string(notification.Type)),
				slog.String("transaction_id", tx.ID),
				slog.String("severity", severity))
		case <-s.shutdownChan:
			return ErrServiceStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("Notification worker started", slog.Int("worker_id", id))

	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, id)
		case <-s.shutdownChan:
			s.drain(id)
			s.logger.Debug("Notification worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

// drain delivers whatever was queued before shutdown.
func (s *NotificationService) drain(workerID int) {
	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, workerID)
		default:
			return
		}
	}
}

func (s *NotificationService) processNotification(msg NotificationMessage, workerID int) {
	startTime := time.Now()
	var err error

	switch msg.Type {
	case NotificationEmail:
		err = s.emailService.SendEmail(msg.Recipient, msg.Subject, msg.Message)
	case NotificationSMS:
		err = s.smsService.SendSMS(msg.Recipient, msg.Message)
	case NotificationSlack:
		err = s.slackService.SendMessage(msg.Recipient, msg.Message)
	default:
		err = fmt.Errorf("unknown notification type: %s", msg.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Failed to send notification",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	} else {
		s.logger.Info("Notification sent successfully",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	}
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.shutdownChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

// LogSender stands in for real providers: it records every message and
// writes it to the log.
type LogSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) SendEmail(to, subject, body string) error {
	return l.record("email", to, subject, body)
}

func (l *LogSender) SendSMS(to, message string) error {
	return l.record("sms", to, "", message)
}

func (l *LogSender) SendMessage(channel, message string) error {
	return l.record("slack", channel, "", message)
}

func (l *LogSender) record(kind, to, subject, body string) error {
	l.mu.Lock()
	l.sent = append(l.sent, sentMessage{To: to, Subject: subject, Body: body})
	l.mu.Unlock()

	l.logger.Info("Notification delivered",
		slog.String("channel", kind),
		slog.String("to", to),
		slog.String("subject", subject))
	return nil
}

// Recipients lists everyone messaged so far, in order.
func (l *LogSender) Recipients() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.sent))
	for _, m := range l.sent {
		out = append(out, m.To)
	}
	return out
}
