package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/attack-correlator/internal/dispatch"
	"github.com/rawblock/attack-correlator/internal/registry"
	"github.com/rawblock/attack-correlator/pkg/models"
)

// recentFindingsMax bounds the in-memory findings buffer the /findings
// endpoint serves.
const recentFindingsMax = 500

// findingsBuffer is a small bounded ring buffer of the most recent
// findings, independent of the durable stores — a convenience read-model
// for the API and not itself persisted.
type findingsBuffer struct {
	mu    sync.Mutex
	items []models.Finding
}

func newFindingsBuffer() *findingsBuffer {
	return &findingsBuffer{}
}

func (b *findingsBuffer) add(f models.Finding) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, f)
	if len(b.items) > recentFindingsMax {
		b.items = b.items[len(b.items)-recentFindingsMax:]
	}
}

func (b *findingsBuffer) recent(limit int) []models.Finding {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.items) {
		limit = len(b.items)
	}
	out := make([]models.Finding, limit)
	copy(out, b.items[len(b.items)-limit:])
	return out
}

// bySeverity returns the buffered findings matching a minimum severity,
// most recent last.
func (b *findingsBuffer) bySeverity(minSeverity models.Severity) []models.Finding {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filtered []models.Finding
	for _, f := range b.items {
		if severityMeetsThreshold(f.Severity, minSeverity) {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// severityMeetsThreshold checks if a severity level meets the minimum
func severityMeetsThreshold(severity, minimum models.Severity) bool {
	levels := map[models.Severity]int{
		models.SeverityInfo: 0, models.SeverityLow: 1, models.SeverityCritical: 2,
	}
	return levels[severity] >= levels[minimum]
}

// APIHandler wires the HTTP surface to the dispatcher and bot registry.
type APIHandler struct {
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	wsHub      *Hub
	chainID    int64
	findings   *findingsBuffer
}

// SetupRouter builds the Gin engine: CORS, public health/stream/findings
// endpoints, and a bearer-token-plus-rate-limited ingest endpoint.
func SetupRouter(d *dispatch.Dispatcher, reg *registry.Registry, wsHub *Hub, chainID int64) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		dispatcher: d,
		registry:   reg,
		wsHub:      wsHub,
		chainID:    chainID,
		findings:   newFindingsBuffer(),
	}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/subscriptions", handler.handleSubscriptions)
		pub.GET("/findings", handler.handleRecentFindings)
	}

	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// The ingest endpoint triggers chain RPC calls and a full
	// decision-engine pass per alert, so it gets a conservative per-IP
	// ceiling.
	auth.Use(NewRateLimiter(120, 20).Middleware())
	{
		auth.POST("/alerts", handler.handleIngestAlert)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "operational",
		"engine":  "attack-correlator",
		"chainId": h.chainID,
	})
}

// handleSubscriptions reports the (botId, alertId, chainId) triples the
// correlator wants delivered, so an upstream alert bus can register
// interest without hardcoding the bot registry on its side.
func (h *APIHandler) handleSubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"subscriptions": h.registry.Subscriptions(h.chainID),
	})
}

func (h *APIHandler) handleRecentFindings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if raw := c.Query("minSeverity"); raw != "" {
		minSeverity, ok := parseSeverity(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid minSeverity",
				"hint":  "one of: Info, Low, Critical",
			})
			return
		}
		findings := h.findings.bySeverity(minSeverity)
		if limit > 0 && limit < len(findings) {
			findings = findings[len(findings)-limit:]
		}
		c.JSON(http.StatusOK, gin.H{"findings": findings})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"findings": h.findings.recent(limit),
	})
}

func parseSeverity(raw string) (models.Severity, bool) {
	for _, s := range []models.Severity{models.SeverityInfo, models.SeverityLow, models.SeverityCritical} {
		if strings.EqualFold(raw, string(s)) {
			return s, true
		}
	}
	return "", false
}

// handleIngestAlert is the correlator's sole write path: it hands the
// decoded alert to the dispatcher, buffers and broadcasts any resulting
// findings, and reports how many findings the alert produced.
func (h *APIHandler) handleIngestAlert(c *gin.Context) {
	var alert models.Alert
	if err := c.ShouldBindJSON(&alert); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert payload", "details": err.Error()})
		return
	}

	findings, err := h.dispatcher.Handle(c.Request.Context(), alert)
	if err != nil {
		var wrongChain *dispatch.WrongChainError
		if errors.As(err, &wrongChain) {
			c.JSON(http.StatusBadRequest, gin.H{"error": wrongChain.Error()})
			return
		}
		log.Printf("[API] dispatch failed for alert %s: %v", alert.AlertID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process alert"})
		return
	}

	for _, f := range findings {
		h.findings.add(f)
		if payload, err := json.Marshal(gin.H{"type": "finding", "finding": f}); err == nil {
			h.wsHub.Broadcast(payload)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"accepted":      true,
		"findingsCount": len(findings),
		"findings":      findings,
	})
}
