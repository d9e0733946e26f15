// Package httpserver issues LiveKit access tokens for client sessions.
package httpserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/livekit/protocol/auth"

	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/config"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/identity"
)

// TokenTTL is the validity window of issued room tokens.
const TokenTTL = 6 * time.Hour

type tokenRequest struct {
	Identity string `json:"identity"`
	UserID   string `json:"user_id"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	Room   string `json:"room"`
	UserID string `json:"user_id"`
}

// TokenHandler mints per-session rooms and the JWTs to join them.
type TokenHandler struct {
	apiKey    string
	apiSecret string
}

// NewTokenHandler constructs the handler from LiveKit API credentials.
func NewTokenHandler(apiKey, apiSecret string) *TokenHandler {
	return &TokenHandler{apiKey: apiKey, apiSecret: apiSecret}
}

// New builds the echo server with routes and middleware registered.
func New(cfg config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	h := NewTokenHandler(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
	e.POST("/token", h.CreateToken)
	e.GET("/ping", Ping)
	return e
}

// Ping is the liveness probe.
func Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// CreateToken mints a fresh usession room for the user and a join token
// scoped to it.
func (h *TokenHandler) CreateToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Identity = strings.TrimSpace(req.Identity)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Identity == "" || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identity and user_id are required")
	}
	// Dashes would make the room name ambiguous when the agent resolves
	// the user id back out of it.
	if strings.Contains(req.UserID, "-") {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id must not contain '-'")
	}
	if h.apiKey == "" || h.apiSecret == "" {
		log.Println("httpserver: livekit credentials not configured")
		return echo.NewHTTPError(http.StatusInternalServerError, "token service not configured")
	}

	roomName := identity.NewRoomName(req.UserID)
	token, err := h.mintJWT(req.Identity, req.UserID, roomName)
	if err != nil {
		log.Printf("httpserver: mint token: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create token")
	}

	log.Printf("httpserver: issued token for identity %s, room %s", req.Identity, roomName)
	return c.JSON(http.StatusOK, tokenResponse{Token: token, Room: roomName, UserID: req.UserID})
}

func (h *TokenHandler) mintJWT(participantIdentity, userID, roomName string) (string, error) {
	canAct := true
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           roomName,
		CanPublish:     &canAct,
		CanSubscribe:   &canAct,
		CanPublishData: &canAct,
	}
	metadata, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return "", err
	}
	at := auth.NewAccessToken(h.apiKey, h.apiSecret).
		SetIdentity(participantIdentity).
		SetValidFor(TokenTTL).
		SetMetadata(string(metadata)).
		SetVideoGrant(grant)
	return at.ToJWT()
}
