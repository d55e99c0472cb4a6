package handlers

import (
	"net/http"

	"triviarena/services"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	registry *services.Registry
}

func NewRoomHandler(registry *services.Registry) *RoomHandler {
	return &RoomHandler{registry: registry}
}

type CreateRoomRequest struct {
	Pin           string `json:"pin"`
	Topic         string `json:"topic" binding:"required"`
	Difficulty    string `json:"difficulty" binding:"required,oneof=easy medium hard"`
	Mode          string `json:"mode" binding:"required,oneof=classic ffa chaos"`
	Password      string `json:"password"`
	QuestionCount int    `json:"question_count" binding:"omitempty,min=1,max=50"`
}

// CreateRoom opens a new room and hands the creator the pin plus the host
// credential that lets them reclaim hosting on a fresh connection.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, created, err := h.registry.ResolveOrCreate(services.RoomParams{
		Pin:           req.Pin,
		Topic:         req.Topic,
		Difficulty:    req.Difficulty,
		Mode:          services.GameMode(req.Mode),
		Password:      req.Password,
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		if hsErr, ok := err.(*services.HandshakeError); ok {
			c.JSON(http.StatusConflict, gin.H{"error": hsErr.Message, "code": hsErr.Code})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The host credential is issued exactly once, to whoever created the
	// room; resolving an existing room never re-discloses it.
	if !created {
		c.JSON(http.StatusOK, gin.H{
			"pin":   room.Pin(),
			"mode":  room.Mode(),
			"topic": room.Topic(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"pin":        room.Pin(),
		"mode":       room.Mode(),
		"topic":      room.Topic(),
		"host_token": room.HostToken(),
	})
}

// GetRoomByPin is the public lobby preview used before connecting.
func (h *RoomHandler) GetRoomByPin(c *gin.Context) {
	pin := c.Param("pin")
	if pin == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room PIN required"})
		return
	}

	room, ok := h.registry.Get(pin)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found", "code": services.CodeRoomNotFound})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pin":          room.Pin(),
		"mode":         room.Mode(),
		"topic":        room.Topic(),
		"has_password": room.HasPassword(),
	})
}
