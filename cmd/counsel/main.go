package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"

	"github.com/counsel-pm/counsel/cmd/counsel/cli"
	"github.com/counsel-pm/counsel/internal/app"
	"github.com/counsel-pm/counsel/internal/audit"
	"github.com/counsel-pm/counsel/internal/auth"
	"github.com/counsel-pm/counsel/internal/cases"
	"github.com/counsel-pm/counsel/internal/firms"
	"github.com/counsel-pm/counsel/internal/observability"
	"github.com/counsel-pm/counsel/internal/platform/cache"
	"github.com/counsel-pm/counsel/internal/platform/db"
	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/roles"
	"github.com/counsel-pm/counsel/internal/shared"
	"github.com/counsel-pm/counsel/internal/users"
	"github.com/counsel-pm/counsel/jobs"
)

const usage = `usage: counsel [command]

commands:
  serve           run the HTTP API (default)
  migrate         apply the database schema
  catalog list    print the permission catalog and action table [--json]
  catalog sync    enqueue a catalog sync for the worker [--json]
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return withConfig(stderr, func(cfg *app.Config) int { return serve(ctx, cfg) })
	case "migrate":
		return withConfig(stderr, func(cfg *app.Config) int { return migrate(ctx, cfg) })
	case "catalog":
		return catalog(ctx, args, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func withConfig(stderr io.Writer, fn func(*app.Config) int) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	return fn(cfg)
}

func catalog(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	sub := args[0]
	fs := pflag.NewFlagSet("catalog "+sub, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	opts := cli.CatalogOptions{JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr}
	switch sub {
	case "list":
		return cli.ListCatalogCommand(rbac.DefaultCatalog(), rbac.DefaultActions(), opts)
	case "sync":
		return withConfig(stderr, func(cfg *app.Config) int {
			jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
			defer jobsCLI.Close()
			return cli.SyncCatalogCommand(ctx, jobsCLI, rbac.CatalogVersion, opts)
		})
	default:
		fmt.Fprintf(stderr, "unknown catalog command %q\n\n%s", sub, usage)
		return 2
	}
}

func migrate(ctx context.Context, cfg *app.Config) int {
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("apply schema", slog.Any("error", err))
		return 1
	}
	logger.Info("schema applied")
	return 0
}

func serve(ctx context.Context, cfg *app.Config) int {
	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, PoolSize: cfg.RedisPoolSize})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	catalog := rbac.DefaultCatalog()
	actions := rbac.DefaultActions()

	tokens, err := auth.NewTokens(auth.TokenConfig{
		Secret: cfg.TokenSecret,
		Issuer: cfg.TokenIssuer,
		TTL:    cfg.TokenTTL,
	}, auth.NewRevocations(redisClient))
	if err != nil {
		logger.Error("init tokens", slog.Any("error", err))
		return 1
	}

	usersRepo := users.NewRepository(dbpool)
	rolesRepo := roles.NewRepository(dbpool)
	roleService := rbac.NewRoleService(rolesRepo, catalog, auditLogger, logger)
	resolver := rbac.NewResolver(rbac.ResolverConfig{
		Credentials: tokens,
		Users:       usersRepo,
		Memberships: usersRepo,
		Roles:       roleService,
		Catalog:     catalog,
		Logger:      logger,
	})
	guard := rbac.NewGuard(rbac.NewEngine(catalog, logger), rbac.NewScopeResolver(usersRepo, logger), actions, logger)
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Guard: guard, Logger: logger, Observer: metrics}

	authService := auth.NewService(auth.NewRepository(dbpool), tokens, resolver)
	firmService := firms.NewService(firms.NewRepository(dbpool), roleService, auditLogger, logger)
	memberService := users.NewService(usersRepo, roleService, auditLogger, logger)
	caseService := cases.NewService(cases.NewRepository(dbpool), auditLogger, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		RBACMiddleware: rbacMiddleware,
		CatalogHandler: rbac.NewCatalogHandler(catalog, actions, rbacMiddleware),
		AuthHandler:    auth.NewHandler(logger, authService, guard, rbacMiddleware, cfg.LoginRateLimit),
		FirmsHandler:   firms.NewHandler(logger, firmService, rbacMiddleware),
		RolesHandler:   roles.NewHandler(logger, roleService, rbacMiddleware),
		MembersHandler: users.NewHandler(logger, memberService, rbacMiddleware),
		CasesHandler:   cases.NewHandler(logger, caseService, rbacMiddleware).WithIdempotency(shared.NewIdempotencyStore(dbpool)),
		AuditHandler:   audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger),
		RequestLogging: true,
	})

	if err := app.Serve(ctx, app.NewServer(cfg, router), logger); err != nil {
		logger.Error("http server", slog.Any("error", err))
		return 1
	}
	return 0
}
