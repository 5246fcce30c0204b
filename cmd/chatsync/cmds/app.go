package cmds

import (
	"errors"
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/RichardoC/chatsync/internal/auth"
	"github.com/RichardoC/chatsync/internal/config"
	"github.com/RichardoC/chatsync/internal/gateway"
	"github.com/RichardoC/chatsync/internal/logging"
	"github.com/RichardoC/chatsync/internal/notify"
	"github.com/RichardoC/chatsync/internal/session"
	"github.com/RichardoC/chatsync/internal/store"
	"github.com/RichardoC/chatsync/internal/updater"
)

var errNotLoggedIn = errors.New("not logged in, run `chatsync login` first")

// App holds the components shared by every subcommand.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Session *session.Session
	Gateway *gateway.Client
	Auth    *auth.Service
	Updater *updater.Updater
	PubSub  *gochannel.GoChannel

	output string
}

func (a *App) init(v *viper.Viper, configPath string) error {
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.Config = cfg

	a.Logger, err = logging.New(cfg.Log.Level, true)
	if err != nil {
		return err
	}

	a.Session = session.New()
	if err := a.Session.Load(cfg.Session.Path); err != nil {
		a.Logger.Warn("ignoring unreadable session file", zap.String("path", cfg.Session.Path), zap.Error(err))
	}

	a.Gateway = gateway.New(cfg.API.BaseURL, a.Session,
		gateway.WithTimeout(cfg.API.Timeout),
		gateway.WithLogger(a.Logger.Named("gateway")))
	a.Auth = auth.New(a.Gateway, a.Session,
		auth.WithEmailDomain(cfg.Auth.EmailDomain),
		auth.WithLogger(a.Logger.Named("auth")))

	a.PubSub = notify.NewGoChannel(a.Logger.Named("pubsub"))
	notifier := notify.Multi{
		notify.NewLogNotifier(a.Logger.Named("notify")),
		notify.NewPublisher(a.PubSub, a.Logger),
	}
	a.Updater = updater.New(store.New(), a.Gateway, notifier,
		updater.WithLogger(a.Logger.Named("updater")),
		updater.WithPrefetch(cfg.Sync.Prefetch))
	return nil
}

// Close persists the session, including a logout forced by the backend.
func (a *App) Close() error {
	if a.Session == nil {
		return nil
	}
	err := a.Session.Save(a.Config.Session.Path)
	if a.PubSub != nil {
		a.PubSub.Close()
	}
	_ = a.Logger.Sync()
	return err
}

func (a *App) requireSession() error {
	if !a.Session.Authenticated() {
		return errNotLoggedIn
	}
	return nil
}

func (a *App) printer(cmd *cobra.Command) *printer {
	return newPrinter(cmd.OutOrStdout(), a.output)
}

func (a *App) errOut(cmd *cobra.Command) io.Writer {
	return cmd.ErrOrStderr()
}
