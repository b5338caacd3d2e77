package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type EmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Client fala com o notification-service externo. Fire-and-forget pros
// callers: erro é logado e a flag de controle fica falsa pro retry.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) SendEmail(ctx context.Context, to, subject, body string) error {
	payload, _ := json.Marshal(EmailRequest{To: to, Subject: subject, Body: body})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/notifications/email", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("notifier http %d", res.StatusCode)
	}
	return nil
}
