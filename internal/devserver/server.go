// Package devserver is an in-memory development backend implementing the
// full REST and live surface the chat engine consumes. It exists so the
// engine can be run and integration-tested end to end without external
// infrastructure; nothing here is a production server.
package devserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/chatcore/internal/auth"
	"github.com/lalith-99/chatcore/internal/backend"
	"github.com/lalith-99/chatcore/internal/models"
	"go.uber.org/zap"
)

const tokenTTL = 24 * time.Hour

// Server bundles the store, the live hub and the gin router.
type Server struct {
	store  *Store
	hub    *hub
	secret string
	logger *zap.Logger
	engine *gin.Engine
}

// New creates a Server. secret signs session tokens.
func New(secret string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		store:  NewStore(),
		hub:    newHub(),
		secret: secret,
		logger: logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Registry and login are public: login is how a token is obtained.
	engine.GET("/users", s.listUsers)
	engine.POST("/users", s.registerUser)
	engine.POST("/login", s.login)

	authed := engine.Group("/")
	authed.Use(RequireAuth(secret))
	authed.GET("/rooms", s.listRooms)
	authed.POST("/room", s.createRoom)
	authed.DELETE("/room/:id", s.deleteRoom)
	authed.GET("/messages/:roomId", s.listMessages)
	authed.POST("/message", s.createMessage)
	authed.POST("/room-members", s.grantMembership)
	authed.GET("/room-access-request/:roomId", s.listRequests)
	authed.POST("/room-access-request", s.createRequest)
	authed.POST("/room-access-request/approve/:id", s.approveRequest)
	authed.POST("/room-access-request/deny/:id", s.denyRequest)
	authed.GET("/ws", s.serveWS)

	s.engine = engine
	return s
}

// Store exposes the in-memory state for seeding.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the router for use with httptest or a custom listener.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("devserver listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

// writeStoreError maps store errors onto the API error taxonomy.
func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errNotFound):
		c.JSON(http.StatusNotFound, backend.APIError{
			Code: backend.CodeNotFound, Message: "resource not found",
		})
	case errors.Is(err, errConflict):
		c.JSON(http.StatusConflict, backend.APIError{
			Code: backend.CodeConflict, Message: "resource already exists",
		})
	case errors.Is(err, errValidation):
		c.JSON(http.StatusBadRequest, backend.APIError{
			Code: backend.CodeValidation, Message: "invalid request",
		})
	default:
		c.JSON(http.StatusInternalServerError, backend.APIError{
			Code: "internal", Message: err.Error(),
		})
	}
}

func (s *Server) listUsers(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListUsers())
}

func (s *Server) registerUser(c *gin.Context) {
	var req struct {
		DisplayName string `json:"displayName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, backend.APIError{
			Code: backend.CodeValidation, Message: err.Error(),
		})
		return
	}
	user, err := s.store.CreateUser(req.DisplayName)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		DisplayName string `json:"displayName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, backend.APIError{
			Code: backend.CodeValidation, Message: err.Error(),
		})
		return
	}
	user, err := s.store.UserByName(req.DisplayName)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	token, err := auth.GenerateToken(user, s.secret, tokenTTL)
	if err != nil {
		s.logger.Error("token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, backend.APIError{
			Code: "internal", Message: "could not issue token",
		})
		return
	}
	c.JSON(http.StatusOK, backend.LoginResult{Token: token, User: user})
}

func (s *Server) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListRooms())
}

func (s *Server) createRoom(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, backend.APIError{
			Code: backend.CodeValidation, Message: err.Error(),
		})
		return
	}
	room, err := s.store.CreateRoom(req.Name)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// deleteRoom is elevated-only. The capability comes from the verified
// token, not the request body — the body's asserted identity is ignored.
func (s *Server) deleteRoom(c *gin.Context) {
	caller := CurrentUser(c)
	if !caller.Capability.Elevated() {
		c.JSON(http.StatusForbidden, backend.APIError{
			Code: backend.CodeNotAuthorized, Message: "room deletion requires elevated capability",
		})
		return
	}
	if err := s.store.DeleteRoom(c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) listMessages(c *gin.Context) {
	history, err := s.store.ListMessages(c.Param("roomId"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	payloads := make([]backend.MessagePayload, 0, len(history))
	for _, msg := range history {
		payloads = append(payloads, backend.PayloadFromMessage(msg))
	}
	c.JSON(http.StatusOK, payloads)
}

// createMessage is the request/response send path. Messages created here
// are broadcast to live subscribers too, so a sender that fell back to
// REST still reaches everyone watching the room.
func (s *Server) createMessage(c *gin.Context) {
	var out backend.OutgoingMessage
	if err := c.ShouldBindJSON(&out); err != nil {
		c.JSON(http.StatusBadRequest, backend.APIError{
			Code: backend.CodeValidation, Message: err.Error(),
		})
		return
	}
	msg, err := s.store.CreateMessage(out.RoomID, out.UserID, out.Content, replyRefFromOutgoing(out))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	s.hub.broadcast(msg)
	c.JSON(http.StatusCreated, backend.PayloadFromMessage(msg))
}

func (s *Server) grantMembership(c *gin.Context) {
	var req struct {
		RoomID string `json:"roomId" binding:"required"`
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, backend.APIError{
			Code: backend.CodeValidation, Message: err.Error(),
		})
		return
	}
	if err := s.store.GrantMembership(req.RoomID, req.UserID); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": true})
}

func (s *Server) listRequests(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListRequests(c.Param("roomId")))
}

func (s *Server) createRequest(c *gin.Context) {
	var req struct {
		RoomID string `json:"roomId" binding:"required"`
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, backend.APIError{
			Code: backend.CodeValidation, Message: err.Error(),
		})
		return
	}
	request, err := s.store.CreateRequest(req.RoomID, req.UserID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

func (s *Server) approveRequest(c *gin.Context) {
	s.resolveRequest(c, models.AccessApproved)
}

func (s *Server) denyRequest(c *gin.Context) {
	s.resolveRequest(c, models.AccessDenied)
}

// resolveRequest is elevated-only: the requester must never be able to
// resolve their own petition.
func (s *Server) resolveRequest(c *gin.Context, status models.AccessStatus) {
	caller := CurrentUser(c)
	if !caller.Capability.Elevated() {
		c.JSON(http.StatusForbidden, backend.APIError{
			Code: backend.CodeNotAuthorized, Message: "resolving access requests requires elevated capability",
		})
		return
	}
	if err := s.store.ResolveRequest(c.Param("id"), status); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
