package handlers

import (
	"math/rand/v2"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tetris_together/internal/logger"
	"tetris_together/internal/service"
)

var sessionID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// participant ids must survive a round trip through JSON numbers
const maxParticipant = 1<<53 - 1

type JoinResponse struct {
	Session     string `json:"session"`
	Participant int64  `json:"participant"`
	Token       string `json:"token"`
	WSPath      string `json:"ws_path"`
	BoardHeight int    `json:"board_height"`
}

// CreateSession mints a fresh session id.
func (h *Handler) CreateSession(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"session": uuid.NewString()})
}

// Join hands out a participant identity and a token scoped to the session.
func (h *Handler) Join(c *gin.Context) {
	session := c.Param("session")
	if !sessionID.MatchString(session) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	participant := rand.Int64N(maxParticipant) + 1
	token, err := service.GenerateJWT(participant, session)
	if err != nil {
		logger.Error("Handler.Join: sign token", "session", session, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	logger.Info("Handler.Join: participant joined", "session", session, "participant", participant)
	c.JSON(http.StatusOK, JoinResponse{
		Session:     session,
		Participant: participant,
		Token:       token,
		WSPath:      "/ws?session=" + session,
		BoardHeight: h.BoardHeight,
	})
}

// Session lists who is connected to the caller's session.
func (h *Handler) Session(c *gin.Context) {
	session := c.Param("session")
	me, _ := getParticipant(c)

	participants := []int64{}
	if room, ok := h.Hub.Room(session); ok {
		participants = room.Participants()
	}
	c.JSON(http.StatusOK, gin.H{
		"session":      session,
		"participant":  me,
		"participants": participants,
	})
}
