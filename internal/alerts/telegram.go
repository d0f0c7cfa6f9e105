package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hedge-bot/internal/config"

	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

// Telegram posts notifications to a single chat through the Bot API.
type Telegram struct {
	cfg      config.TelegramConfig
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, nil)
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	return &Telegram{
		cfg:      cfg,
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(baseURL, "/"), cfg.Token),
		client:   client,
		log:      log,
	}
}

// Notify sends title and body as one message. A body equal to the title is
// dropped.
func (t *Telegram) Notify(ctx context.Context, title, body string) error {
	if !t.cfg.Enabled {
		return nil
	}
	if t.cfg.Token == "" || t.cfg.ChatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	text := strings.TrimSpace(title)
	if b := strings.TrimSpace(body); b != "" && b != text {
		text = strings.TrimSpace(text + "\n" + b)
	}
	if text == "" {
		return errors.New("telegram message is empty")
	}

	resp, err := postJSON(ctx, t.client, t.endpoint, nil, telegramMessage{ChatID: t.cfg.ChatID, Text: text})
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	defer resp.Body.Close()

	var reply telegramReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.log.Debug("telegram reply not decoded", zap.Error(err))
		return nil
	}
	if !reply.OK {
		desc := strings.TrimSpace(reply.Description)
		if desc == "" {
			desc = "unknown telegram error"
		}
		return fmt.Errorf("telegram send failed: %s", desc)
	}
	return nil
}
