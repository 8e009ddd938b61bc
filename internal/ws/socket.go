package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/forcerank/internal/engine"
	"github.com/rs/zerolog/log"
)

type ConnCtx struct {
	Code   string
	UserID string
}

type Server struct {
	eng *engine.Engine
	hub *Hub
}

func New(eng *engine.Engine, hub *Hub) *Server {
	return &Server{eng: eng, hub: hub}
}

type request interface {
	Validate() error
	ids() (code, userID string)
}

// on registers a typed handler for one inbound message.
func on[T request](io *socketio.Server, srv *Server, event string, fn func(T) error) {
	io.OnEvent("/", event, func(s socketio.Conn, req T) map[string]any {
		return dispatch(srv, s, event, req, fn)
	})
}

func dispatch[T request](srv *Server, c emitter, event string, req T, fn func(T) error) map[string]any {
	code, userID := req.ids()
	log.Info().Str("sid", c.ID()).Str("code", code).Str("userId", userID).Msg(event)
	if err := req.Validate(); err != nil {
		return srv.fail(c, event, err)
	}
	srv.hub.Bind(userID, c)
	if cc, ok := c.(interface{ SetContext(interface{}) }); ok {
		cc.SetContext(&ConnCtx{Code: code, UserID: userID})
	}
	if err := fn(req); err != nil {
		return srv.fail(c, event, err)
	}
	return map[string]any{"ok": true}
}

// Mount attaches the Socket.IO server with all game handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	on(io, srv, "createGame", srv.createGame)
	on(io, srv, "joinGame", srv.joinGame)
	on(io, srv, "checkGameExists", srv.checkGameExists)
	on(io, srv, "startGame", srv.startGame)
	on(io, srv, "updateRankings", srv.updateRankings)
	on(io, srv, "lockRankings", srv.lockRankings)
	// submitRankings is the old name clients still send for a lock-in.
	on(io, srv, "submitRankings", srv.lockRankings)
	on(io, srv, "nextRanking", srv.nextRanking)
	on(io, srv, "startNextRound", srv.nextRanking)
	on(io, srv, "rejoinGame", srv.rejoinGame)
	on(io, srv, "endGame", srv.endGame)
	on(io, srv, "stopWaiting", srv.stopWaiting)
	on(io, srv, "quitGame", srv.quitGame)
	on(io, srv, "initUser", srv.initUser)
	on(io, srv, "joinDemoMarvel", srv.joinDemo)
	on(io, srv, "getFinalDemoResults", srv.finalDemoResults)

	io.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket error")
			return
		}
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.hub.Drop(s)
		ev := log.Info().Str("sid", s.ID()).Str("reason", reason)
		if ctx, ok := s.Context().(*ConnCtx); ok && ctx != nil {
			ev = ev.Str("code", ctx.Code).Str("userId", ctx.UserID)
		}
		ev.Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

func (srv *Server) createGame(req createGameReq) error {
	_, err := srv.eng.CreateSession(context.Background(), req.GameCode, req.Names, req.UserID)
	return err
}

func (srv *Server) joinGame(req gameReq) error {
	_, err := srv.eng.JoinSession(context.Background(), req.GameCode, req.UserID)
	return err
}

func (srv *Server) checkGameExists(req gameReq) error {
	_, err := srv.eng.CheckGameExists(context.Background(), req.GameCode, req.UserID)
	return err
}

func (srv *Server) startGame(req gameReq) error {
	_, err := srv.eng.StartRound(context.Background(), req.GameCode, req.UserID)
	return err
}

func (srv *Server) updateRankings(req rankingsReq) error {
	return srv.eng.UpdateRanking(context.Background(), req.GameCode, req.UserID, req.Rankings)
}

func (srv *Server) lockRankings(req rankingsReq) error {
	_, err := srv.eng.LockRanking(context.Background(), req.GameCode, req.UserID, req.Rankings)
	return err
}

func (srv *Server) nextRanking(req gameReq) error {
	_, err := srv.eng.AdvanceRound(context.Background(), req.GameCode, req.UserID)
	return err
}

func (srv *Server) rejoinGame(req gameReq) error {
	_, err := srv.eng.RejoinSession(context.Background(), req.GameCode, req.UserID)
	return err
}

func (srv *Server) endGame(req gameReq) error {
	return srv.eng.EndSession(context.Background(), req.GameCode, req.UserID)
}

func (srv *Server) stopWaiting(req gameReq) error {
	_, err := srv.eng.ForceComplete(context.Background(), req.GameCode, req.UserID)
	return err
}

func (srv *Server) quitGame(req gameReq) error {
	_, err := srv.eng.QuitSession(context.Background(), req.GameCode, req.UserID)
	return err
}

func (srv *Server) initUser(req userReq) error {
	_, err := srv.eng.InitUser(context.Background(), req.UserID)
	return err
}

func (srv *Server) joinDemo(req userReq) error {
	_, err := srv.eng.JoinDemo(context.Background(), req.UserID)
	return err
}

func (srv *Server) finalDemoResults(req gameReq) error {
	_, err := srv.eng.FinalDemoResults(context.Background(), req.GameCode, req.UserID)
	return err
}

// fail reports an error to the calling socket only.
func (srv *Server) fail(c emitter, event string, err error) map[string]any {
	code := errorCode(err)
	ev := log.Warn()
	if code == "internal" {
		ev = log.Error()
	}
	ev.Str("sid", c.ID()).Str("event", event).Str("errCode", code).Err(err).Msg("request failed")
	c.Emit("error", map[string]any{"code": code, "message": err.Error()})
	return map[string]any{"error": err.Error()}
}
