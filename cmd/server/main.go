// Command server runs the ImageBridge HTTP gateway: an OpenAI-compatible
// image-generation facade with session refresh, local artifact retention,
// and an optional Telegram sidecar.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/zcc135820/imagebridge/internal/api"
	"github.com/zcc135820/imagebridge/internal/buildinfo"
	"github.com/zcc135820/imagebridge/internal/config"
	"github.com/zcc135820/imagebridge/internal/gallery"
	"github.com/zcc135820/imagebridge/internal/gateway"
	"github.com/zcc135820/imagebridge/internal/logging"
	"github.com/zcc135820/imagebridge/internal/notify"
	"github.com/zcc135820/imagebridge/internal/session"
	"github.com/zcc135820/imagebridge/internal/upstream"
	"github.com/zcc135820/imagebridge/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("imagebridge %s (%s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	logging.SetupBaseLogger()

	cfg, err := config.LoadConfigOptional(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.ApplyLogLevel(cfg)
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Fatalf("configure log output: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persist, cleanup, err := buildPersistStore(ctx, cfg)
	if err != nil {
		log.Fatalf("session persistence: %v", err)
	}
	defer cleanup()

	store := session.NewStore(persist)
	store.Seed(os.Getenv("ACCESS_TOKEN"), os.Getenv("EXCHANGE_TOKEN"))
	store.Load(ctx)

	refreshClient := util.SetProxy(cfg.ProxyURL, &http.Client{Timeout: 30 * time.Second})
	refresher := session.NewRefresher(store, cfg.Upstream.AuthorizeURL, cfg.Upstream.TokenURL, refreshClient)

	var mirror *gallery.Mirror
	if cfg.ObjectStore.Enabled() {
		if mirror, err = gallery.NewMirror(cfg.ObjectStore); err != nil {
			log.Warnf("object-store mirror disabled: %v", err)
			mirror = nil
		}
	}
	galleryStore, err := gallery.NewStore(cfg.Storage.Dir, cfg.Storage.Keep, mirror)
	if err != nil {
		log.Fatalf("artifact store: %v", err)
	}

	var bot *notify.Bot
	var notifier gateway.Notifier
	if cfg.Telegram.Enabled() {
		if bot, err = notify.NewBot(cfg.Telegram); err != nil {
			log.Warnf("telegram sidecar disabled: %v", err)
		} else {
			notifier = bot
		}
	}

	gw := gateway.New(store, refresher, upstream.NewClient(cfg), galleryStore, notifier)
	if bot != nil {
		bot.SetGateway(gw)
		go bot.Run(ctx)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.New(cfg, gw)

	watcher, err := config.NewWatcher(*configPath, func(next *config.Config) {
		logging.ApplyLogLevel(next)
		server.UpdateConfig(next)
	})
	if err != nil {
		log.Warnf("config watcher disabled: %v", err)
	} else if err = watcher.Start(ctx); err != nil {
		log.Warnf("config watcher failed to start: %v", err)
	}

	log.Infof("imagebridge %s starting on port %d", buildinfo.Version, cfg.Port)
	if err = server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Info("imagebridge stopped")
}

// buildPersistStore picks the session backend: Postgres when SESSION_PG_DSN
// is set, a local JSON file otherwise.
func buildPersistStore(ctx context.Context, cfg *config.Config) (session.PersistStore, func(), error) {
	if dsn := os.Getenv("SESSION_PG_DSN"); dsn != "" {
		pg, err := session.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		log.Info("session persistence: postgres")
		return pg, func() { _ = pg.Close() }, nil
	}
	return session.NewFileStore(cfg.Storage.SessionFile), func() {}, nil
}
