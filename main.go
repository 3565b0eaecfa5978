package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tactics-board/handlers/api/boards"
	"tactics-board/handlers/api/snapshots"
	"tactics-board/handlers/websocket"
	authMiddleware "tactics-board/middleware"
	"tactics-board/stores"
)

const shutdownTimeout = 10 * time.Second

// allowOrigin accepts the configured origins, or any loopback origin when none
// are configured.
func allowOrigin(allowed []string) func(r *http.Request, origin string) bool {
	return func(r *http.Request, origin string) bool {
		if origin == "" {
			return false
		}
		if len(allowed) > 0 {
			for _, a := range allowed {
				if a == origin {
					return true
				}
			}
			return false
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		switch parsed.Scheme {
		case "http", "https":
			switch parsed.Hostname() {
			case "localhost", "127.0.0.1", "::1":
				return true
			}
		}
		return false
	}
}

func setupRouter(store stores.Store, notifier boards.Notifier, secret []byte, origins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  allowOrigin(origins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"X-Board-Access"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	snapshotStore, hasSnapshots := stores.Snapshots(store)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.AuthJWT(secret))

		r.Route("/boards", func(r chi.Router) {
			r.Post("/", boards.HandleCreate(store))
			r.Get("/", boards.HandleList(store))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", boards.HandleGet(store))
				r.Put("/", boards.HandlePut(store, notifier))
				r.Delete("/", boards.HandleDelete(store))
				r.Get("/preview.svg", boards.HandlePreview(store))

				r.Get("/access", boards.HandleListAccess(store))
				r.Put("/access/{userId}", boards.HandleGrantAccess(store))
				r.Delete("/access/{userId}", boards.HandleRevokeAccess(store))

				if hasSnapshots {
					r.Post("/snapshots", snapshots.HandleCreateSnapshot(store, snapshotStore))
					r.Get("/snapshots", snapshots.HandleListSnapshots(store, snapshotStore))
				}
			})
		})

		if hasSnapshots {
			r.Route("/snapshots/{snapshotId}", func(r chi.Router) {
				r.Get("/", snapshots.HandleGetSnapshot(store, snapshotStore))
				r.Delete("/", snapshots.HandleDeleteSnapshot(store, snapshotStore))
				r.Post("/restore", snapshots.HandleRestoreSnapshot(store, snapshotStore, notifier))
			})
		}
	})

	if hasSnapshots {
		logrus.Info("Snapshot API routes registered")
	} else {
		logrus.Warn("Snapshot API not available with this storage type")
	}
	return r
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	secret := []byte(os.Getenv("JWT_SECRET"))
	if len(secret) == 0 {
		logrus.Fatal("JWT_SECRET is required")
	}
	origins := splitList(os.Getenv("CORS_ORIGINS"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	store := stores.GetStore(ctx)
	hub := websocket.NewHub(store, secret, origins)

	r := setupRouter(store, hub, secret, origins)
	r.Handle("/socket.io/", hub.Server().ServeHandler(nil))

	srv := &http.Server{
		Addr:              *listenAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.WithField("addr", *listenAddress).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		hub.Server().Close(nil)
		if c, ok := store.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				logrus.WithError(cerr).Warn("Failed to close storage")
			}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logrus.WithField("event", "server").Fatal(err)
	}
}
