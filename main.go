package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deemkeen/plaza/db"
	"github.com/deemkeen/plaza/domain"
	"github.com/deemkeen/plaza/federation"
	"github.com/deemkeen/plaza/util"
	"github.com/deemkeen/plaza/web"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	addAuthor := flag.String("add-author", "", "register a local author with this display name and exit")
	github := flag.String("github", "", "github handle of the author added with -add-author")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(util.GetNameAndVersion())
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Could not load .env file", "error", err)
	}

	conf, err := util.ReadConf()
	if err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	util.SetupLogging(os.Stderr, conf.Conf.LogLevel)
	slog.Info("Configuration loaded", "public", conf.Conf.PublicURL, "peers", len(conf.Peers),
		"async", conf.Delivery.Async, "reconcile", conf.Reconcile.Enabled)

	dbPath := util.ResolveFilePath(conf.Conf.DatabasePath)
	database, err := db.Open(dbPath)
	if err != nil {
		slog.Error("Failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer database.Close()

	slog.Info("Running database migrations...", "path", dbPath)
	if err := database.Migrate(); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}

	codec := federation.NewCodec(conf.Conf.PublicURL)

	if *addAuthor != "" {
		if err := registerAuthor(database, codec, *addAuthor, *github); err != nil {
			slog.Error("Failed to add author", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(conf, database, codec); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func registerAuthor(database *db.DB, codec *federation.Codec, name, github string) error {
	id := uuid.New()
	author := &domain.Author{
		Id:          id,
		DisplayName: name,
		Github:      github,
		Host:        codec.LocalHost,
		URL:         codec.AuthorURL(codec.LocalHost, id),
	}
	if err := database.CreateAuthor(author); err != nil {
		return err
	}
	slog.Info("Author created", "url", author.URL)
	fmt.Println(author.ToString())
	return nil
}

func serve(conf *util.AppConfig, database *db.DB, codec *federation.Codec) error {
	registry, err := federation.NewRegistry(conf.Peers)
	if err != nil {
		return fmt.Errorf("peer registry: %w", err)
	}
	slog.Info("Peer registry loaded", "peers", registry.Len())

	client := federation.NewPeerClient(codec, conf.Delivery.Timeout, util.UserAgent())
	breaker := federation.NewBreaker(conf.Delivery.BreakerThreshold, conf.Delivery.BreakerCooldown)
	normalizer := federation.NewNormalizer(codec)
	processor := federation.NewProcessor(database, codec, registry, client, normalizer)
	resolver := federation.NewAudienceResolver(database, codec)
	dispatcher := federation.NewDispatcher(database, processor, registry, client, breaker, normalizer, conf.Delivery.Workers)

	var opts []federation.ServiceOption
	if conf.Delivery.Async {
		opts = append(opts, federation.WithAsyncDelivery())
	}
	service := federation.NewService(database, codec, resolver, dispatcher, processor, registry, client, normalizer, opts...)

	if conf.Conf.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := web.NewServer(conf, database, service, processor, codec, registry, client, normalizer)
	httpServer := &http.Server{
		Addr:              server.Addr(),
		Handler:           web.Router(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pollerDone := make(chan struct{})
	if conf.Reconcile.Enabled {
		poller := federation.NewPoller(database, registry, client, conf.Reconcile.Interval, conf.Reconcile.CycleTimeout)
		go func() {
			defer close(pollerDone)
			poller.Run(ctx)
		}()
	} else {
		close(pollerDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", httpServer.Addr, "public", codec.LocalHost, "version", util.GetVersion())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-pollerDone
			return err
		}
	}

	slog.Info("Stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
	<-pollerDone
	dispatcher.Wait()
	return nil
}
