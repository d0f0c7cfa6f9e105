package alerts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hedge-bot/internal/config"
)

const pushbulletBaseURL = "https://api.pushbullet.com"

type Pushbullet struct {
	enabled bool
	token   string
	baseURL string
	client  *http.Client
}

func NewPushbullet(cfg config.PushbulletConfig) *Pushbullet {
	return newPushbullet(cfg, pushbulletBaseURL, nil)
}

func newPushbullet(cfg config.PushbulletConfig, baseURL string, client *http.Client) *Pushbullet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Pushbullet{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (p *Pushbullet) Notify(ctx context.Context, title, body string) error {
	if !p.enabled {
		return nil
	}
	if p.token == "" {
		return errors.New("pushbullet token is required")
	}
	resp, err := postJSON(ctx, p.client, p.baseURL+"/v2/pushes",
		map[string]string{"Access-Token": p.token},
		map[string]string{"type": "note", "title": title, "body": body},
	)
	if err != nil {
		return fmt.Errorf("pushbullet push failed: %w", err)
	}
	return resp.Body.Close()
}
