package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/message-sync/internal/inbox"
	"github.com/LeventeLantos/message-sync/internal/model"
)

const DefaultBaseURL = "https://api.whatsiplus.com"

// ProviderClient talks to the WhatsApp gateway. The token is part of every
// request path, so one client serves any settings record.
type ProviderClient struct {
	baseURL string
	client  *http.Client
}

func NewProviderClient(baseURL string, timeout time.Duration) *ProviderClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProviderClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type SendRequest struct {
	Recipient string
	Message   string
	Link      string
}

// Send posts an outbound message as multipart form fields. The returned id is
// empty when the provider does not report one.
func (c *ProviderClient) Send(ctx context.Context, token string, sr SendRequest) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"phonenumber", sr.Recipient},
		{"message", sr.Message},
	}
	if strings.TrimSpace(sr.Link) != "" {
		fields = append(fields, [2]string{"link", sr.Link})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/sendMsg/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return remoteID(body), nil
}

// ReceivedMessages fetches and normalizes one page of the inbox of phone.
func (c *ProviderClient) ReceivedMessages(ctx context.Context, token, phone string, page int) ([]model.InboundRecord, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("phonenumber", inbox.DigitsOnly(phone))

	endpoint := c.baseURL + "/receivedMessages/" + url.PathEscape(token) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	recs, err := inbox.Normalize(body)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w body=%q", page, err, truncate(body, 256))
	}
	return recs, nil
}

func (c *ProviderClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func remoteID(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	for _, k := range []string{"messageId", "message_id", "id"} {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
