// Package httpapi serves the REST side of Force Rank: health, existence probes
// used by the client on page load, user bookkeeping and join QR codes.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kiliankoe/forcerank/internal/engine"
	"github.com/kiliankoe/forcerank/internal/storage"
	"github.com/kiliankoe/forcerank/internal/terms"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
)

type API struct {
	eng       *engine.Engine
	users     storage.UserStore
	terms     storage.TermStore
	publicURL string
	now       func() time.Time
}

func New(eng *engine.Engine, users storage.UserStore, termStore storage.TermStore, publicURL string) *API {
	return &API{
		eng:       eng,
		users:     users,
		terms:     termStore,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AccessLog logs one line per request through zerolog, skipping socket.io polling.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("method", c.Request.Method).Str("path", path).
			Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	}
}

func (a *API) Register(r *gin.Engine) {
	r.GET("/health", a.health)
	r.GET("/checkGameExists/:gameCode", a.checkGameExists)
	r.GET("/checkUser/:userId", a.checkUser)
	r.GET("/checkUserAndGame/:userId/:gameCode", a.checkUserAndGame)
	r.POST("/writeUser", a.writeUser)
	r.GET("/initUser/:userId", a.initUser)
	r.GET("/getRankings", a.getRankings)
	r.POST("/logClick", a.logClick)
	r.GET("/api/games/:code/qr", a.joinQR)
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "time": a.now()})
}

func (a *API) checkGameExists(c *gin.Context) {
	code := c.Param("gameCode")
	sess, err := a.eng.Lookup(c.Request.Context(), code)
	if errors.Is(err, engine.ErrSessionNotFound) {
		c.JSON(http.StatusOK, gin.H{"exists": false, "gameCode": code})
		return
	}
	if err != nil {
		a.internal(c, "check game", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exists":       true,
		"gameCode":     code,
		"state":        sess.State,
		"playersCount": sess.PlayersCount,
		"demoMode":     sess.DemoMode,
	})
}

func (a *API) checkUser(c *gin.Context) {
	userID := c.Param("userId")
	ok, err := a.users.UserExists(c.Request.Context(), userID)
	if err != nil {
		a.internal(c, "check user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": ok, "userId": userID})
}

func (a *API) checkUserAndGame(c *gin.Context) {
	userID, code := c.Param("userId"), c.Param("gameCode")
	sess, err := a.eng.Lookup(c.Request.Context(), code)
	if errors.Is(err, engine.ErrSessionNotFound) {
		c.JSON(http.StatusOK, gin.H{"gameExists": false, "userInGame": false})
		return
	}
	if err != nil {
		a.internal(c, "check user and game", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gameExists": true,
		"userInGame": sess.IsMember(userID),
		"isCreator":  sess.IsCreator(userID),
		"state":      sess.State,
	})
}

type writeUserReq struct {
	UserID string `json:"userId"`
}

func (a *API) writeUser(c *gin.Context) {
	var req writeUserReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	created, err := a.users.PutUser(c.Request.Context(), req.UserID)
	if err != nil {
		a.internal(c, "write user", err)
		return
	}
	log.Info().Str("userId", req.UserID).Bool("created", created).Msg("user written")
	c.JSON(http.StatusOK, gin.H{"userId": req.UserID, "created": created})
}

func (a *API) initUser(c *gin.Context) {
	userID := c.Param("userId")
	created, err := a.eng.InitUser(c.Request.Context(), userID)
	if errors.Is(err, engine.ErrBadRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if err != nil {
		a.internal(c, "init user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "created": created})
}

func (a *API) getRankings(c *gin.Context) {
	list, err := a.terms.Terms(c.Request.Context())
	if err != nil {
		a.internal(c, "list terms", err)
		return
	}
	if len(list) == 0 {
		list = terms.Default
	}
	c.JSON(http.StatusOK, list)
}

type clickReq struct {
	UserID   string `json:"userId"`
	ButtonID string `json:"buttonId"`
}

func (a *API) logClick(c *gin.Context) {
	var req clickReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ButtonID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "buttonId is required"})
		return
	}
	click := storage.Click{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		ButtonID:  req.ButtonID,
		Timestamp: a.now(),
	}
	if err := a.users.LogClick(c.Request.Context(), click); err != nil {
		a.internal(c, "log click", err)
		return
	}
	log.Debug().Str("userId", click.UserID).Str("buttonId", click.ButtonID).Msg("click logged")
	c.JSON(http.StatusOK, gin.H{"id": click.ID, "timestamp": click.Timestamp})
}

// joinQR renders a PNG QR code pointing at the join page of a game.
func (a *API) joinQR(c *gin.Context) {
	code := c.Param("code")
	if _, err := a.eng.Lookup(c.Request.Context(), code); errors.Is(err, engine.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	} else if err != nil {
		a.internal(c, "qr lookup", err)
		return
	}
	png, err := qrcode.Encode(a.joinURL(c, code), qrcode.Medium, 320)
	if err != nil {
		a.internal(c, "qr encode", err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (a *API) joinURL(c *gin.Context, code string) string {
	base := a.publicURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	return base + "/?gameCode=" + url.QueryEscape(code)
}

func (a *API) internal(c *gin.Context, op string, err error) {
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(op + " failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
