package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Viktor-Beniukh/library-service-api/util/httpx"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSink posts the event text to one chat through the Bot API. Sends
// are paced to one per second per chat, with a small burst.
type TelegramSink struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	limit   *rate.Limiter
}

func NewTelegramSink(token, chatID, baseURL string) *TelegramSink {
	if baseURL == "" {
		baseURL = telegramAPI
	}
	return &TelegramSink{
		token:   token,
		chatID:  chatID,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpx.Client(),
		limit:   rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

func (s *TelegramSink) Notify(ctx context.Context, e Event) error {
	if err := s.limit.Wait(ctx); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	body, err := json.Marshal(map[string]string{"chat_id": s.chatID, "text": e.Text()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/bot"+s.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	if _, ok, _ := httpx.ReadBody(resp); !ok {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}
