package http

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"github.com/perzivalh/botsito-podopie/internal/entities"
	"github.com/perzivalh/botsito-podopie/internal/flow"
	"github.com/perzivalh/botsito-podopie/internal/infrastructure"
	"github.com/perzivalh/botsito-podopie/internal/repository"
	"github.com/perzivalh/botsito-podopie/internal/usecases"
)

// Cloud API webhook payload. Only the fields the bot reads.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

type Handler struct {
	engine      *usecases.Engine
	flows       *flow.Registry
	auth        *usecases.AuthUsecase
	captures    *repository.CaptureRepository
	waManager   *infrastructure.WhatsAppManager
	verifyToken string
	debugKey    string
}

func NewHandler(engine *usecases.Engine, flows *flow.Registry, auth *usecases.AuthUsecase, captures *repository.CaptureRepository, waManager *infrastructure.WhatsAppManager, verifyToken, debugKey string) *Handler {
	return &Handler{
		engine:      engine,
		flows:       flows,
		auth:        auth,
		captures:    captures,
		waManager:   waManager,
		verifyToken: verifyToken,
		debugKey:    debugKey,
	}
}

func SetupRoutes(r *gin.Engine, h *Handler, m *Middleware) {
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20)) // 1MB max request size
	r.Use(m.CORSMiddleware())

	r.GET("/health", h.Health)
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.ReceiveWebhook)

	r.GET("/debug/state", DebugKeyRequired(h.debugKey), h.DebugState)

	r.POST("/api/auth/login", h.Login)

	api := r.Group("/api")
	api.Use(m.AuthRequired())
	api.Use(m.RateLimitPerUser(rate.Limit(10), 20))
	{
		api.GET("/flows", h.ListFlows)
		api.POST("/flows/reload", h.ReloadFlows)
		api.POST("/flows/:id/activate", h.ActivateFlow)
		api.POST("/sessions/:wa_id/reset", h.ResetSession)
		api.GET("/leads", h.ListLeads)
		api.GET("/payments", h.ListPayments)

		wa := api.Group("/whatsapp/:device")
		{
			wa.GET("/status", h.DeviceStatus)
			wa.GET("/qr", h.DeviceQR)
			wa.POST("/connect", h.DeviceConnect)
			wa.POST("/logout", h.DeviceLogout)
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// VerifyWebhook answers the provider's subscription handshake: echo
// hub.challenge only when the verify token matches.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// ReceiveWebhook acknowledges immediately and processes the batch in
// the background. The provider retries on anything but a fast 200.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		// Ack anyway so the provider does not retry a body we can
		// never parse.
		log.Printf("[WEBHOOK] discarding unparseable payload: %v", err)
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	msgs := flattenWebhook(&payload)
	c.String(http.StatusOK, "EVENT_RECEIVED")

	if len(msgs) == 0 {
		return
	}
	go func() {
		for _, msg := range msgs {
			h.engine.Handle(msg)
		}
	}()
}

func flattenWebhook(p *webhookPayload) []entities.InboundMessage {
	var out []entities.InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, wm := range change.Value.Messages {
				out = append(out, toInbound(wm))
			}
		}
	}
	return out
}

func toInbound(wm webhookMessage) entities.InboundMessage {
	msg := entities.InboundMessage{
		ID:      wm.ID,
		From:    wm.From,
		Type:    wm.Type,
		Channel: "whatsapp",
	}
	if ts, err := strconv.ParseInt(wm.Timestamp, 10, 64); err == nil {
		msg.Timestamp = ts
	}
	if wm.Text != nil {
		msg.Text = wm.Text.Body
	}
	if wm.Interactive != nil {
		if wm.Interactive.ButtonReply != nil {
			msg.ReplyID = wm.Interactive.ButtonReply.ID
			msg.ReplyText = wm.Interactive.ButtonReply.Title
		} else if wm.Interactive.ListReply != nil {
			msg.ReplyID = wm.Interactive.ListReply.ID
			msg.ReplyText = wm.Interactive.ListReply.Title
		}
	}
	return msg
}

// DebugState exposes live sessions and recent captures for manual
// inspection. Guarded by DebugKeyRequired.
func (h *Handler) DebugState(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	sessions := h.engine.Sessions().Snapshot()

	var leads []entities.Lead
	var payments []entities.PaymentRequest
	if h.captures != nil {
		var err error
		leads, err = h.captures.RecentLeads(ctx, 200)
		if err != nil {
			log.Printf("[DEBUG] failed to load leads: %v", err)
		}
		payments, err = h.captures.RecentPaymentRequests(ctx, 200)
		if err != nil {
			log.Printf("[DEBUG] failed to load payment requests: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions":         sessions,
		"leads":            leads,
		"payment_requests": payments,
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	token, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) ListFlows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"flows": h.flows.List()})
}

func (h *Handler) ReloadFlows(c *gin.Context) {
	if err := h.flows.Reload(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flows": h.flows.List()})
}

func (h *Handler) ActivateFlow(c *gin.Context) {
	id := c.Param("id")
	if err := h.flows.Activate(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	log.Printf("[FLOWS] activated flow %s", id)
	c.JSON(http.StatusOK, gin.H{"active": id})
}

func (h *Handler) ResetSession(c *gin.Context) {
	waID := SanitizeWaID(c.Param("wa_id"))
	if waID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wa_id required"})
		return
	}
	h.engine.Sessions().Reset(waID)
	c.JSON(http.StatusOK, gin.H{"reset": waID})
}

func (h *Handler) ListLeads(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50)
	leads, err := h.captures.RecentLeads(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

func (h *Handler) ListPayments(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50)
	payments, err := h.captures.RecentPaymentRequests(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payment requests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_requests": payments})
}

func parseLimit(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 500 {
		return def
	}
	return n
}

func (h *Handler) device(c *gin.Context) (string, bool) {
	device := c.Param("device")
	if !ValidSlug(device) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device name"})
		return "", false
	}
	return device, true
}

func (h *Handler) DeviceStatus(c *gin.Context) {
	device, ok := h.device(c)
	if !ok {
		return
	}
	client := h.waManager.GetClient(device)
	if client == nil {
		c.JSON(http.StatusOK, gin.H{"device": device, "connected": false, "logged_in": false})
		return
	}
	jid, name := client.GetUserInfo()
	c.JSON(http.StatusOK, gin.H{
		"device":    device,
		"connected": client.IsConnected(),
		"logged_in": client.IsLoggedIn(),
		"jid":       jid,
		"push_name": name,
	})
}

// DeviceQR renders the current pairing QR as a PNG, or 404 when the
// device is already paired or no code is pending.
func (h *Handler) DeviceQR(c *gin.Context) {
	device, ok := h.device(c)
	if !ok {
		return
	}
	client := h.waManager.GetClient(device)
	if client == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not connected, call connect first"})
		return
	}
	code := client.GetQR()
	if code == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no QR pending"})
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render QR"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) DeviceConnect(c *gin.Context) {
	device, ok := h.device(c)
	if !ok {
		return
	}
	client, err := h.waManager.ConnectClient(device)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device":    device,
		"connected": client.IsConnected(),
		"logged_in": client.IsLoggedIn(),
	})
}

func (h *Handler) DeviceLogout(c *gin.Context) {
	device, ok := h.device(c)
	if !ok {
		return
	}
	if err := h.waManager.LogoutClient(device); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"device": device, "logged_out": true})
}
