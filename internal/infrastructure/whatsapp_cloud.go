package infrastructure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/perzivalh/botsito-podopie/internal/entities"
	"github.com/perzivalh/botsito-podopie/internal/interfaces"
)

const graphAPIBase = "https://graph.facebook.com/v22.0"

// WhatsAppCloudClient sends messages through the WhatsApp Business Cloud
// API. It is the outbound half of the webhook channel; inbound arrives
// through the HTTP callback.
type WhatsAppCloudClient struct {
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
	baseURL       string
}

func NewWhatsAppCloudClient(accessToken, phoneNumberID string) interfaces.Messenger {
	return &WhatsAppCloudClient{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		baseURL:       graphAPIBase,
	}
}

func (w *WhatsAppCloudClient) Send(to string, msg entities.OutboundMessage) error {
	switch msg.Kind {
	case entities.OutboundButtons:
		return w.post(buildButtonPayload(to, msg))
	case entities.OutboundList:
		return w.post(buildListPayload(to, msg))
	default:
		return w.post(map[string]interface{}{
			"messaging_product": "whatsapp",
			"to":                to,
			"type":              "text",
			"text":              map[string]string{"body": msg.Body},
		})
	}
}

func buildButtonPayload(to string, msg entities.OutboundMessage) map[string]interface{} {
	buttons := make([]map[string]interface{}, 0, len(msg.Options))
	for _, opt := range msg.Options {
		buttons = append(buttons, map[string]interface{}{
			"type": "reply",
			"reply": map[string]string{
				"id":    opt.ID,
				"title": opt.Title,
			},
		})
	}
	return map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "button",
			"body": map[string]string{"text": msg.Body},
			"action": map[string]interface{}{
				"buttons": buttons,
			},
		},
	}
}

func buildListPayload(to string, msg entities.OutboundMessage) map[string]interface{} {
	rows := make([]map[string]string, 0, len(msg.Options))
	for _, opt := range msg.Options {
		row := map[string]string{
			"id":    opt.ID,
			"title": opt.Title,
		}
		if opt.Description != "" {
			row["description"] = opt.Description
		}
		rows = append(rows, row)
	}
	return map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "list",
			"header": map[string]string{"type": "text", "text": msg.Header},
			"body":   map[string]string{"text": msg.Body},
			"action": map[string]interface{}{
				"button": msg.ButtonLabel,
				"sections": []map[string]interface{}{
					{"title": "Opciones", "rows": rows},
				},
			},
		},
	}
}

func (w *WhatsAppCloudClient) post(payload map[string]interface{}) error {
	if w.accessToken == "" || w.phoneNumberID == "" {
		return fmt.Errorf("whatsapp cloud client not configured")
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whatsapp api status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
