// Package api is a thin HTTP shell over the engine: discovery, the
// item/want delta endpoints, per-wallet loop queries, and the event stream.
// The engine itself never depends on this package.
package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/tradeloop-engine/internal/engine"
	"github.com/rawblock/tradeloop-engine/internal/notify"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

type Handler struct {
	engine *engine.Engine
	hub    *notify.Hub
}

// SetupRouter wires the CORS, auth, and rate-limit middleware chain in front
// of the trade-loop engine's discovery and delta endpoints.
func SetupRouter(eng *engine.Engine, hub *notify.Hub) *gin.Engine {
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
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &Handler{engine: eng, hub: hub}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", hub.Subscribe)
	}

	tenant := r.Group("/api/v1/tenants/:tenant")
	tenant.Use(AuthMiddleware())
	tenant.Use(NewRateLimiter(60, 10).Middleware())
	{
		tenant.POST("/discover", handler.handleDiscover)
		tenant.POST("/items", handler.handleItemAdded)
		tenant.DELETE("/items/:item", handler.handleItemRemoved)
		tenant.POST("/wants", handler.handleWantAdded)
		tenant.DELETE("/wants/:wallet/:item", handler.handleWantRemoved)
		tenant.GET("/wallets/:wallet/loops", handler.handleLoopsForWallet)
		tenant.GET("/loops/active-count", handler.handleActiveLoopCount)
		tenant.GET("/metrics", handler.handleMetrics)
	}

	return r
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "operational", "engine": "tradeloop-engine"})
}

// handleDiscover runs full-graph discovery over a posted snapshot.
// POST /api/v1/tenants/:tenant/discover { "wallets": [...], "items": [...] }
func (h *Handler) handleDiscover(c *gin.Context) {
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot payload", "details": err.Error()})
		return
	}

	snap := req.toSnapshot()
	result, err := h.engine.Discover(c.Request.Context(), snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.engine.RecordDiscovery(models.TenantID(c.Param("tenant")), result)

	c.JSON(http.StatusOK, gin.H{
		"loops": result.Loops,
		"stats": result.Stats,
	})
}

func (h *Handler) handleItemAdded(c *gin.Context) {
	tenant := models.TenantID(c.Param("tenant"))
	var req struct {
		Item     models.ItemID   `json:"item"`
		Owner    models.WalletID `json:"owner"`
		Snapshot snapshotRequest `json:"snapshot"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	snap := req.Snapshot.toSnapshot()
	if _, ok := snap.Items[req.Item]; !ok {
		snap.Items[req.Item] = &models.Item{ID: req.Item, Owner: req.Owner}
	}

	loops, err := h.engine.OnItemAdded(c.Request.Context(), tenant, snap, req.Item)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"newLoops": loops})
}

func (h *Handler) handleItemRemoved(c *gin.Context) {
	tenant := models.TenantID(c.Param("tenant"))
	item := models.ItemID(c.Param("item"))
	h.engine.OnItemRemoved(tenant, item)
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

func (h *Handler) handleWantAdded(c *gin.Context) {
	tenant := models.TenantID(c.Param("tenant"))
	var req struct {
		Wallet   models.WalletID `json:"wallet"`
		Item     models.ItemID   `json:"item"`
		Snapshot snapshotRequest `json:"snapshot"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	snap := req.Snapshot.toSnapshot()
	if w, ok := snap.Wallets[req.Wallet]; ok {
		w.WantedItems[req.Item] = struct{}{}
	}

	loops, err := h.engine.OnWantAdded(c.Request.Context(), tenant, snap, req.Wallet)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"newLoops": loops})
}

func (h *Handler) handleWantRemoved(c *gin.Context) {
	tenant := models.TenantID(c.Param("tenant"))
	wallet := models.WalletID(c.Param("wallet"))
	item := models.ItemID(c.Param("item"))
	h.engine.OnWantRemoved(tenant, wallet, item)
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

func (h *Handler) handleLoopsForWallet(c *gin.Context) {
	tenant := models.TenantID(c.Param("tenant"))
	wallet := models.WalletID(c.Param("wallet"))
	c.JSON(http.StatusOK, gin.H{"loops": h.engine.LoopsForWallet(tenant, wallet)})
}

func (h *Handler) handleActiveLoopCount(c *gin.Context) {
	tenant := models.TenantID(c.Param("tenant"))
	c.JSON(http.StatusOK, gin.H{"activeLoopCount": h.engine.ActiveLoopCount(tenant)})
}

// handleMetrics reports cumulative per-tenant counters (cycles found,
// permutations eliminated, timeouts hit, partitions processed) accumulated
// across every discover/delta call for this tenant.
func (h *Handler) handleMetrics(c *gin.Context) {
	tenant := models.TenantID(c.Param("tenant"))
	c.JSON(http.StatusOK, h.engine.Metrics(tenant))
}
