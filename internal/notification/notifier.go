// Package notification delivers alerts for pipeline events (published
// signals, failed publishes, closed paper trades) to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"signal-bridge/internal/ledger"
	"signal-bridge/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level      AlertLevel `json:"level"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Symbol     string     `json:"symbol,omitempty"`
	DecisionID string     `json:"decision_id,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all of its notifiers.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the configured channels. It returns nil when neither
// Telegram nor a webhook is set up.
func FromConfig(telegramToken, telegramChatID, webhookURL string) Notifier {
	var m Multi
	if telegramToken != "" && telegramChatID != "" {
		m = append(m, NewTelegramNotifier(telegramToken, telegramChatID))
	}
	if webhookURL != "" {
		m = append(m, NewWebhookNotifier(webhookURL))
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

// SignalAlert announces a published signal.
func SignalAlert(sig *model.TradingSignal, entry float64) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s signal", sig.Symbol, sig.Side),
		Message: fmt.Sprintf("entry %.2f stop %.2f tp1 %.2f tp2 %.2f capital %.2f%% (%s)",
			entry, sig.Risk.InitialStop, sig.Risk.TP1(), sig.Risk.TP2(), sig.Risk.MaxCapitalPct*100, sig.Rationale),
		Symbol:     sig.Symbol,
		DecisionID: sig.DecisionID,
	}
}

// PublishFailedAlert reports a signal that could not be handed off.
func PublishFailedAlert(symbol, decisionID, cause string) Alert {
	return Alert{
		Level:      AlertCritical,
		Title:      fmt.Sprintf("%s publish failed", symbol),
		Message:    cause,
		Symbol:     symbol,
		DecisionID: decisionID,
	}
}

// TradeAlert reports a closed trade. Losing trades are warnings.
func TradeAlert(symbol string, res ledger.TradeResult) Alert {
	level := AlertInfo
	if res.PnLRMultiple < 0 {
		level = AlertWarning
	}
	return Alert{
		Level:      level,
		Title:      fmt.Sprintf("%s trade closed: %s", symbol, res.ExitReason),
		Message:    fmt.Sprintf("exit %.2f R %.2f", float64(res.ExitPrice), float64(res.PnLRMultiple)),
		Symbol:     symbol,
		DecisionID: res.DecisionID,
	}
}
