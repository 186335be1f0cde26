package notification

import (
	"context"
	"log"
	"strings"
)

// TelegramNotifier posts alerts to a chat through the Bot API sendMessage
// method, formatted as MarkdownV2.
type TelegramNotifier struct {
	token   string
	chatID  string
	apiBase string
	poster
}

// NewTelegramNotifier takes a BotFather token and the target chat id.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		apiBase: "https://api.telegram.org",
		poster:  newPoster("telegram"),
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}{t.chatID, formatTelegram(alert), "MarkdownV2"}

	if err := t.postJSON(ctx, t.apiBase+"/bot"+t.token+"/sendMessage", msg); err != nil {
		return err
	}
	log.Printf("[telegram] alert delivered: %s", alert.Title)
	return nil
}

func formatTelegram(a Alert) string {
	var b strings.Builder
	b.WriteString(levelMarker(a.Level))
	b.WriteString(" *")
	b.WriteString(escapeMarkdown(a.Title))
	b.WriteString("*\n\n")
	b.WriteString(escapeMarkdown(a.Message))
	if a.DecisionID != "" {
		// Decision ids are uuids or plain tokens; code spans need no escaping for them.
		b.WriteString("\n`" + a.DecisionID + "`")
	}
	return b.String()
}

func levelMarker(l AlertLevel) string {
	switch l {
	case AlertCritical:
		return "🚨"
	case AlertWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

var markdownEscaper = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
