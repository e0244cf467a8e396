package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/arnold/stakeit-api/internal/logger"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// PushService handles sending push notifications via Firebase Cloud Messaging
type PushService struct {
	client *messaging.Client
	store  *repository.Store
}

// NewPush initializes the Firebase push notification service.
// Returns a disabled service if no service account is configured (dev mode).
func NewPush(ctx context.Context, serviceAccountPath string, store *repository.Store) *PushService {
	if serviceAccountPath == "" {
		logger.Info("FCM: no service account configured, push notifications disabled")
		return &PushService{store: store}
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		logger.Warn("FCM: failed to initialize Firebase app", "err", err)
		return &PushService{store: store}
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		logger.Warn("FCM: failed to get messaging client", "err", err)
		return &PushService{store: store}
	}

	logger.Info("FCM: push notifications enabled")
	return &PushService{client: client, store: store}
}

func (p *PushService) Enabled() bool {
	return p != nil && p.client != nil
}

// SendToUser sends a push notification to a user by their ID.
// No-op if push is not configured or user has no FCM token.
func (p *PushService) SendToUser(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) {
	if !p.Enabled() {
		return
	}

	user, err := p.store.GetUser(ctx, userID)
	if err != nil || user.FCMToken == "" {
		return
	}

	msg := &messaging.Message{
		Token: user.FCMToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	if _, err := p.client.Send(ctx, msg); err != nil {
		logger.Warn("FCM: failed to send", "user", userID, "err", err)
	}
}

// Notifier stores in-app notifications and mirrors them as pushes. It also
// marks the reminder hand-off for deferred check-ins; delivering the
// reminder at the goal's reminder time belongs to an external scheduler.
type Notifier struct {
	store *repository.Store
	push  *PushService
}

func NewNotifier(store *repository.Store, push *PushService) *Notifier {
	return &Notifier{store: store, push: push}
}

// Notify must be called outside any open transaction.
func (n *Notifier) Notify(ctx context.Context, userID uuid.UUID, notifType, title, body string, metadata map[string]interface{}) {
	if n == nil {
		return
	}

	notif := models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
	}

	var pushData map[string]string
	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			s := string(data)
			notif.Metadata = &s
		}
		pushData = make(map[string]string, len(metadata)+1)
		for k, v := range metadata {
			pushData[k] = fmt.Sprintf("%v", v)
		}
		pushData["type"] = notifType
	}

	if err := n.store.CreateNotification(ctx, &notif); err != nil {
		logger.Warn("failed to store notification", "user", userID, "type", notifType, "err", err)
	}

	if n.push.Enabled() {
		go func() {
			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			n.push.SendToUser(pushCtx, userID, title, body, pushData)
		}()
	}
}

// ScheduleReminder hands a deferred check-in to the reminder boundary.
func (n *Notifier) ScheduleReminder(ctx context.Context, goal *models.Goal, date string) {
	at := "later today"
	if goal.ReminderTime != nil {
		at = "at " + *goal.ReminderTime + " UTC"
	}
	logger.Info("check-in deferred", "goal", goal.ID, "date", date)
	n.Notify(ctx, goal.UserID, models.NotificationReminderScheduled,
		"Check-in reminder",
		fmt.Sprintf("We'll remind you %s to check in on \"%s\".", at, goal.Title),
		map[string]interface{}{"goalId": goal.ID.String(), "date": date})
}

func (n *Notifier) PenaltyCharged(ctx context.Context, goal *models.Goal, payment *models.Payment) {
	charity := "charity"
	if payment.CharityName != nil {
		charity = *payment.CharityName
	}
	n.Notify(ctx, goal.UserID, models.NotificationPenaltyCharged,
		"Penalty charged",
		fmt.Sprintf("%s %s was donated to %s for \"%s\".", payment.Amount.StringFixed(2), payment.Currency, charity, goal.Title),
		map[string]interface{}{"goalId": goal.ID.String(), "paymentId": payment.ID.String()})
}

func (n *Notifier) PenaltyFailed(ctx context.Context, goal *models.Goal, checkIn *models.CheckIn, reason string) {
	n.Notify(ctx, goal.UserID, models.NotificationPenaltyFailed,
		"Penalty payment failed",
		fmt.Sprintf("We couldn't collect the penalty for \"%s\": %s", goal.Title, reason),
		map[string]interface{}{"goalId": goal.ID.String(), "checkInId": checkIn.ID.String()})
}

func (n *Notifier) StakeRefunded(ctx context.Context, goal *models.Goal, refund *models.Payment) {
	n.Notify(ctx, goal.UserID, models.NotificationStakeRefunded,
		"Stake refunded",
		fmt.Sprintf("%s %s is on its way back to you.", refund.Amount.Neg().StringFixed(2), refund.Currency),
		map[string]interface{}{"goalId": goal.ID.String(), "paymentId": refund.ID.String()})
}
