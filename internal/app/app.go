package app

import (
	"github.com/carousell/ct-go/pkg/logger"
	"github.com/ofirdahan/poalim-chat/internal/bot"
	"github.com/ofirdahan/poalim-chat/internal/chat"
	"github.com/ofirdahan/poalim-chat/internal/config"
	"github.com/ofirdahan/poalim-chat/internal/server"
	"github.com/ofirdahan/poalim-chat/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"
)

func Invoke(funcs ...any) *fx.App {
	log := logger.MustNamed("app")
	conf := config.MustLoad()
	log.Debugw("config loaded", "config", conf)
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			store.New,
			bot.New,
			chat.NewRooms,
			server.NewHub,
		),
		fx.Supply(conf),
		fx.Invoke(funcs...),
	)
}
