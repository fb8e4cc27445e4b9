package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"recast/internal/config"
	"recast/internal/services/telegram"
)

// Event identifies a job lifecycle moment worth telling the operator about.
type Event string

const (
	EventJobStarted   Event = "job_started"
	EventJobSucceeded Event = "job_succeeded"
	EventJobFailed    Event = "job_failed"
	EventJobCanceled  Event = "job_canceled"
	EventTest         Event = "test"
)

// Payload carries event details into the rendered message.
type Payload map[string]any

// Service is the notification surface the pipeline publishes to.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Messenger sends one rendered message. *telegram.Client satisfies it.
type Messenger interface {
	IsConfigured() bool
	SendQuietMessage(ctx context.Context, chatID, text string) error
	SendMessage(ctx context.Context, chatID, text string) error
}

// NewService builds the Telegram-backed notifier when an ops chat is
// configured, otherwise a noop implementation.
func NewService(cfg *config.Config) Service {
	chatID := strings.TrimSpace(cfg.Telegram.OpsChatID)
	if chatID == "" || strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return noopService{}
	}
	client := telegram.New(telegram.Config{
		BotToken:       cfg.Telegram.BotToken,
		TimeoutSeconds: cfg.Telegram.TimeoutSeconds,
	})
	return &telegramService{messenger: client, chatID: chatID}
}

// NewWithMessenger wires an explicit messenger, used by tests.
func NewWithMessenger(messenger Messenger, chatID string) Service {
	if messenger == nil || strings.TrimSpace(chatID) == "" {
		return noopService{}
	}
	return &telegramService{messenger: messenger, chatID: chatID}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

type telegramService struct {
	messenger Messenger
	chatID    string
}

func (s *telegramService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !s.messenger.IsConfigured() {
		return nil
	}
	text := renderMessage(event, payload)
	if text == "" {
		return nil
	}
	// Failures escalate enough to warrant a sound; routine progress stays quiet.
	if event == EventJobFailed {
		return s.messenger.SendMessage(ctx, s.chatID, text)
	}
	return s.messenger.SendQuietMessage(ctx, s.chatID, text)
}

func renderMessage(event Event, payload Payload) string {
	switch event {
	case EventJobStarted:
		return fmt.Sprintf("▶️ Recast job %s started%s",
			payloadString(payload, "job_id"), subjectSuffix(payload))
	case EventJobSucceeded:
		msg := fmt.Sprintf("✅ Recast job %s succeeded%s",
			payloadString(payload, "job_id"), subjectSuffix(payload))
		if url := payloadString(payload, "url"); url != "" {
			msg += "\n" + url
		}
		return msg
	case EventJobFailed:
		msg := fmt.Sprintf("❌ Recast job %s failed%s",
			payloadString(payload, "job_id"), subjectSuffix(payload))
		if step := payloadString(payload, "step"); step != "" {
			msg += fmt.Sprintf("\nstep: %s", step)
		}
		if kind := payloadString(payload, "kind"); kind != "" {
			msg += fmt.Sprintf("\nkind: %s", kind)
		}
		if reason := payloadString(payload, "error"); reason != "" {
			msg += fmt.Sprintf("\n%s", reason)
		}
		return msg
	case EventJobCanceled:
		return fmt.Sprintf("🛑 Recast job %s canceled%s",
			payloadString(payload, "job_id"), subjectSuffix(payload))
	case EventTest:
		return "Recast notification test: if you can read this, notifications work."
	default:
		return renderGeneric(event, payload)
	}
}

func subjectSuffix(payload Payload) string {
	if subject := payloadString(payload, "video_id"); subject != "" {
		return fmt.Sprintf(" (video %s)", subject)
	}
	return ""
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch value := payload[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case error:
		return strings.TrimSpace(value.Error())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

// renderGeneric formats unknown events so new publishers degrade readably
// instead of silently.
func renderGeneric(event Event, payload Payload) string {
	parts := make([]string, 0, len(payload))
	for key := range payload {
		parts = append(parts, fmt.Sprintf("%s=%s", key, payloadString(payload, key)))
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return fmt.Sprintf("Recast: %s", event)
	}
	return fmt.Sprintf("Recast: %s (%s)", event, strings.Join(parts, ", "))
}
