package handlers

import (
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"lootCrate/api"
	"lootCrate/auth"
	"lootCrate/services/lifecycle"
	"lootCrate/services/lootbox"
)

// SpinCooldown is the interval during which repeated spins from the same
// user are rejected. A UX affordance against double taps, not a correctness
// guard; the try-count decrement is the real limit.
const SpinCooldown = 2 * time.Second

// Server wires the lifecycle operations to HTTP. Responses are the lifecycle
// result shapes encoded as JSON; the HTTP status mirrors the error code.
type Server struct {
	lifecycle lifecycle.Service

	mu        sync.Mutex
	lastSpins map[string]time.Time
}

func NewServer(service lifecycle.Service) *Server {
	return &Server{
		lifecycle: service,
		lastSpins: map[string]time.Time{},
	}
}

// RegisterRoutes attaches every endpoint to the router.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/ping", s.Ping)
	r.POST("/lootboxes/spin", s.SpinLootbox)

	g := r.Group("/groupboxes")
	g.POST("", s.CreateGroupBox)
	g.GET("", s.ListGroupBoxes)
	g.POST("/:id/join", s.JoinGroupBox)
	g.POST("/:id/spin", s.SpinGroupBox)
	g.POST("/:id/leave", s.LeaveGroupBox)
	g.DELETE("/:id", s.DeleteGroupBox)
	g.POST("/:id/tries", s.GrantExtraTries)
	g.PUT("/:id/items", s.EditItems)
	g.POST("/:id/sync", s.SyncGroupBox)
	g.PUT("/:id/favorite", s.SetFavorite)
	g.GET("/:id/history", s.History)
}

func (s *Server) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ping": "pong"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"errors":  []string{lifecycle.CodeValidationError + ": " + err.Error()},
	})
}

type createRequest struct {
	Lootbox  api.Lootbox          `json:"lootbox"`
	Settings api.GroupBoxSettings `json:"settings"`
}

func (s *Server) CreateGroupBox(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result := s.lifecycle.CreateGroupBox(c.Request.Context(), req.Lootbox, req.Settings)
	c.JSON(statusFor(result.ErrorCode()), result)
}

func (s *Server) ListGroupBoxes(c *gin.Context) {
	result := s.lifecycle.ListGroupBoxes(c.Request.Context())
	c.JSON(statusFor(result.ErrorCode()), result)
}

func (s *Server) JoinGroupBox(c *gin.Context) {
	result := s.lifecycle.JoinGroupBox(c.Request.Context(), c.Param("id"))
	c.JSON(statusFor(result.ErrorCode()), result)
}

func (s *Server) SpinGroupBox(c *gin.Context) {
	if user, ok := auth.FromContext(c.Request.Context()); ok {
		if !s.allowSpin(user.ID) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"errors":  []string{"Cooldown: wait before spinning again"},
			})
			return
		}
	}
	result := s.lifecycle.SpinGroupBox(c.Request.Context(), c.Param("id"))
	c.JSON(statusFor(result.ErrorCode()), result)
}

func (s *Server) LeaveGroupBox(c *gin.Context) {
	result := s.lifecycle.LeaveGroupBox(c.Request.Context(), c.Param("id"))
	c.JSON(statusFor(result.ErrorCode()), result)
}

func (s *Server) DeleteGroupBox(c *gin.Context) {
	forEveryone, _ := strconv.ParseBool(c.Query("forEveryone"))
	result := s.lifecycle.DeleteGroupBox(c.Request.Context(), c.Param("id"), forEveryone)
	c.JSON(statusFor(result.ErrorCode()), result)
}

type grantRequest struct {
	UserID string `json:"userId"`
	Delta  int    `json:"delta"`
}

func (s *Server) GrantExtraTries(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result := s.lifecycle.GrantExtraTries(c.Request.Context(), c.Param("id"), req.UserID, req.Delta)
	c.JSON(statusFor(result.ErrorCode()), result)
}

type editItemsRequest struct {
	Items []api.Item `json:"items"`
}

func (s *Server) EditItems(c *gin.Context) {
	var req editItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result := s.lifecycle.EditItems(c.Request.Context(), c.Param("id"), req.Items)
	c.JSON(statusFor(result.ErrorCode()), result)
}

func (s *Server) SyncGroupBox(c *gin.Context) {
	result := s.lifecycle.SyncGroupBoxData(c.Request.Context(), c.Param("id"))
	c.JSON(statusFor(result.ErrorCode()), result)
}

type favoriteRequest struct {
	Favorite bool `json:"favorite"`
}

func (s *Server) SetFavorite(c *gin.Context) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result := s.lifecycle.SetFavorite(c.Request.Context(), c.Param("id"), req.Favorite)
	c.JSON(statusFor(result.ErrorCode()), result)
}

func (s *Server) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	result := s.lifecycle.History(c.Request.Context(), c.Param("id"), limit)
	c.JSON(statusFor(result.ErrorCode()), result)
}

// SpinLootbox draws from a single-user lootbox posted in the request body.
// Nothing is stored; personal boxes live on the client.
func (s *Server) SpinLootbox(c *gin.Context) {
	var req api.Lootbox
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := lootbox.Validate(req.LootboxDefinition); err != nil {
		badRequest(c, err)
		return
	}
	item, err := lootbox.Draw(req.Items, rand.Float64())
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"errors":  []string{},
		"outcome": api.SpinOutcome{Item: item, Timestamp: time.Now()},
	})
}

func (s *Server) allowSpin(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if last, ok := s.lastSpins[userID]; ok && now.Sub(last) < SpinCooldown {
		return false
	}
	s.lastSpins[userID] = now
	return true
}

func statusFor(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case lifecycle.CodeUnauthenticated:
		return http.StatusUnauthorized
	case lifecycle.CodeForbidden:
		return http.StatusForbidden
	case lifecycle.CodeNotFound:
		return http.StatusNotFound
	case lifecycle.CodeValidationError:
		return http.StatusBadRequest
	case lifecycle.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		// Expired, Inactive, OrganizerCannotParticipate, NoTriesRemaining
		return http.StatusConflict
	}
}
