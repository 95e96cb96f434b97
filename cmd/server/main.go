package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/auth/provider"
	"github.com/tasklane/tasklane/internal/config"
	"github.com/tasklane/tasklane/internal/database"
	"github.com/tasklane/tasklane/internal/health"
	"github.com/tasklane/tasklane/internal/ssl"
	"github.com/tasklane/tasklane/internal/task"
	"github.com/tasklane/tasklane/internal/token"
	"github.com/tasklane/tasklane/internal/user"
	tlhttp "github.com/tasklane/tasklane/pkg/http"
	"github.com/tasklane/tasklane/pkg/util/cors"
	"github.com/tasklane/tasklane/pkg/util/passwordutil"
)

func main() {
	config.LoadConfig()
	cfg := config.Current

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup database
	db, err := database.NewDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Error opening %s database: %v\n", cfg.Database.Type, err)
	}
	log.Printf("Using %s database\n", cfg.Database.Type)

	// Setup services
	issuer, err := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenLife)
	if err != nil {
		log.Fatalf("Error creating token issuer: %v\n", err)
	}
	hasher := passwordutil.NewBcryptHasher(cfg.Auth.BcryptCost)
	authService := auth.NewService(db.Users(), hasher, issuer, cfg.Auth.ResetTokenLife)
	taskService := task.NewService(db.Tasks())

	authOpts := auth.Options{
		FrontendURL:   cfg.OAuth.FrontendURL,
		SecureCookies: cfg.Server.Scheme == "https",
	}
	if cfg.OAuth.Enabled() {
		authOpts.Provider = provider.New(cfg.OAuth)
		log.Println("OAuth sign-in enabled")
	}
	if cfg.Limiter.Enabled {
		limiter := tlhttp.NewRateLimiter(ctx, cfg.Limiter.RPS, cfg.Limiter.Burst)
		authOpts.Middleware = append(authOpts.Middleware, limiter.Middleware)
	}

	// Setup routing
	r := mux.NewRouter()
	auth.SetupRoutes(r, authService, authOpts)
	task.SetupRoutes(r, taskService, authService.Authenticated)
	user.SetupRoutes(r, authService.Authenticated)
	health.SetupRoutes(r, db)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := http.Server{
		Addr:    addr,
		Handler: cors.Middleware(cfg.CORS.AllowedOrigins)(r),

		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		var err error
		log.Printf("Listening on %s\n", cfg.Server.URL())
		if cfg.Server.Scheme == "https" {
			if err := ssl.EnsureCertificate(cfg.Server.TLSCert, cfg.Server.TLSKey, cfg.Server.Host); err != nil {
				log.Fatalf("Error preparing TLS certificate: %v\n", err)
			}
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	<-c

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		log.Printf("Error shutting down server: %v\n", err)
	}

	log.Println("Closing database connection...")
	err = db.Close()
	if err != nil {
		log.Printf("Error closing database: %v\n", err)
	}
}
