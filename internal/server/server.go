package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/carousell/ct-go/pkg/logger"
	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ofirdahan/poalim-chat/internal/bot"
	"github.com/ofirdahan/poalim-chat/internal/chat"
	"github.com/ofirdahan/poalim-chat/internal/config"
	"go.uber.org/fx"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from a separately hosted frontend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	hub *Hub,
	rooms *chat.Rooms,
	engine *bot.Engine,
) {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw(c.Request().Context(), "PANIC RECOVER", "error", err, "stack", string(stack))
			return nil
		},
	}))

	validate := NewValidator()
	wsLog := logger.MustNamed("ws")

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/ws", func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		cl := newClient(conn, wsLog)
		sess := newSession(
			rooms,
			engine,
			hub,
			cl.sendEvent,
			func(from, to string) { hub.move(cl, from, to) },
			validate,
			conf.Chat.DefaultRoomID,
		)

		go cl.writePump()
		cl.readPump(sess.handleFrame)

		hub.drop(cl, sess.roomID)
		close(cl.done)
		return nil
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infow(ctx, "starting HTTP server", "addr", conf.Server.Addr())
				if err := e.Start(conf.Server.Addr()); !errors.Is(err, http.ErrServerClosed) {
					sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}
