package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicore/clinicore/internal/config"
	"github.com/clinicore/clinicore/internal/domain/authz"
	"github.com/clinicore/clinicore/internal/domain/clinical"
	"github.com/clinicore/clinicore/internal/domain/contacts"
	"github.com/clinicore/clinicore/internal/domain/credentials"
	"github.com/clinicore/clinicore/internal/domain/messaging"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/docstore"
	"github.com/clinicore/clinicore/internal/platform/filestore"
	"github.com/clinicore/clinicore/internal/platform/graph"
	"github.com/clinicore/clinicore/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema, graph constraints and document indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("postgres migration failed: %w", err)
			}
			fmt.Println("postgres schema applied")

			driver, err := graph.NewDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
			if err != nil {
				return err
			}
			defer driver.Close(ctx)

			if err := graph.EnsureSchema(ctx, driver); err != nil {
				return fmt.Errorf("graph schema failed: %w", err)
			}
			fmt.Println("graph constraints applied")

			client, err := docstore.Connect(ctx, cfg.MongoURI)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)

			if err := messaging.EnsureIndexes(ctx, client.Database(cfg.MongoDB)); err != nil {
				return fmt.Errorf("document indexes failed: %w", err)
			}
			fmt.Println("document indexes applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the bootstrap admin and viewer accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := credentials.NewService(credentials.NewAccountRepo(pool))
			if err := seedAccounts(ctx, svc); err != nil {
				return err
			}
			fmt.Println("bootstrap accounts ensured")
			return nil
		},
	}
}

// seedAccounts creates the built-in operator accounts if they do not
// exist yet. Existing accounts are left untouched so changed passwords
// survive restarts.
func seedAccounts(ctx context.Context, svc *credentials.Service) error {
	if err := svc.EnsureAccount(ctx, "admin", "admin", authz.RoleAdmin); err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}
	if err := svc.EnsureAccount(ctx, "viewer", "viewer123", authz.RoleViewer); err != nil {
		return fmt.Errorf("seed viewer account: %w", err)
	}
	return nil
}

// resolveJWTSecret returns the configured signing secret. In development a
// random secret is generated when none is set; tokens then become invalid
// on restart, which is acceptable for local work only.
func resolveJWTSecret(cfg *config.Config) ([]byte, bool, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate jwt secret: %w", err)
	}
	return []byte(hex.EncodeToString(key)), true, nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Account store (Postgres)
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	logger.Info().Msg("connected to database")

	// Clinical graph (Neo4j)
	driver, err := graph.NewDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to graph store")
	}
	defer driver.Close(ctx)
	if err := graph.EnsureSchema(ctx, driver); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply graph constraints")
	}
	logger.Info().Msg("connected to graph store")

	// Message store (MongoDB)
	client, err := docstore.Connect(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to document store")
	}
	defer client.Disconnect(ctx)
	mongoDB := client.Database(cfg.MongoDB)
	if err := messaging.EnsureIndexes(ctx, mongoDB); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure document indexes")
	}
	logger.Info().Msg("connected to document store")

	// Attachment storage
	files, err := filestore.NewDirStore(cfg.FilesDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open file storage")
	}

	// Token issuer
	secret, generated, err := resolveJWTSecret(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve jwt secret")
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set, generated an ephemeral secret; sessions will not survive restarts")
	}
	issuer := auth.NewTokenIssuer(secret, time.Duration(cfg.TokenTTLMin)*time.Minute)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware; login and health stay open
	e.Use(auth.Middleware(issuer, func(c echo.Context) bool {
		if c.Path() == "/health" {
			return true
		}
		return c.Request().Method == http.MethodPost && strings.HasSuffix(c.Path(), "/auth/login")
	}))

	apiV1 := e.Group("/api/v1")

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Accounts and login
	accountRepo := credentials.NewAccountRepo(pool)
	credSvc := credentials.NewService(accountRepo)
	prov := credentials.NewProvisioner(accountRepo, logger)
	dir := credentials.NewDirectory(accountRepo)
	credHandler := credentials.NewHandler(credSvc, issuer)
	credHandler.RegisterRoutes(apiV1)

	if err := seedAccounts(ctx, credSvc); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed bootstrap accounts")
	}

	// Clinical records
	graphRepo := clinical.NewGraphRepo(driver)
	clinicalSvc := clinical.NewService(graphRepo, prov, files, logger)
	clinicalHandler := clinical.NewHandler(clinicalSvc)
	clinicalHandler.RegisterRoutes(apiV1)

	// Messaging
	resolver := contacts.NewResolver(graphRepo, dir, logger)
	gateway := messaging.NewGateway(messaging.NewMessageRepo(mongoDB), resolver, files, logger)
	messagingHandler := messaging.NewHandler(gateway)
	messagingHandler.RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
