package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	accountmod "github.com/example/shop-monolith/modules/account"
	activitymod "github.com/example/shop-monolith/modules/activity"
	blogmod "github.com/example/shop-monolith/modules/blog"
	cachemod "github.com/example/shop-monolith/modules/cache"
	httpservermod "github.com/example/shop-monolith/modules/httpserver"
	mediamod "github.com/example/shop-monolith/modules/media"
	shopmod "github.com/example/shop-monolith/modules/shop"
	storemod "github.com/example/shop-monolith/modules/store"
	throttlemod "github.com/example/shop-monolith/modules/throttle"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/middleware/accesslog"
	"github.com/go-monolith/mono/middleware/requestid"
	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
	kvjetstream "github.com/go-monolith/mono/plugin/kv-jetstream"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var (
	// Global flags
	httpPort int
	dbDSN    string

	// create-user flags
	userEmail     string
	userPassword  string
	userStaff     bool
	userSuperuser bool

	// create-products flags
	seedOwner string
)

var rootCmd = &cobra.Command{
	Use:   "shop-monolith",
	Short: "Shop and blog service with role-gated product and order management",
	Long: `Shop and blog service built as a modular monolith.

Products, orders, blog articles and accounts are served over HTTP. Every
mutating operation is checked against the requesting user's staff,
superuser and permission flags.

Examples:
  shop-monolith serve                        # Start the HTTP server
  shop-monolith serve --port 8080            # Start on another port
  shop-monolith create-user admin --superuser --password secret123
  shop-monolith create-products --owner admin`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var createUserCmd = &cobra.Command{
	Use:   "create-user <username>",
	Short: "Create an account, optionally staff or superuser",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreateUser(cmd.Context(), args[0])
	},
}

var createProductsCmd = &cobra.Command{
	Use:   "create-products",
	Short: "Create the demo products (Laptop, Desktop, Smartphone) if missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreateProducts(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().IntVar(&httpPort, "port", getEnvInt("HTTP_PORT", 3000), "HTTP port")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db-dsn", getEnv("DB_DSN", "shop.db"), "Database DSN")

	createUserCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	createUserCmd.Flags().StringVar(&userPassword, "password", "", "Password (8 to 72 bytes)")
	createUserCmd.Flags().BoolVar(&userStaff, "staff", false, "Grant staff status")
	createUserCmd.Flags().BoolVar(&userSuperuser, "superuser", false, "Grant superuser status")
	_ = createUserCmd.MarkFlagRequired("password")

	createProductsCmd.Flags().StringVar(&seedOwner, "owner", "admin", "Username owning the created products")

	rootCmd.AddCommand(serveCmd, createUserCmd, createProductsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func storeConfig() storemod.Config {
	return storemod.Config{
		Driver:  getEnv("DB_DRIVER", "sqlite"),
		DSN:     dbDSN,
		Debug:   getEnvBool("DB_DEBUG", false),
		Timeout: getEnvDuration("DB_TIMEOUT", 5*time.Second),
	}
}

// openStore connects and migrates the database.
func openStore(ctx context.Context) (*storemod.Module, error) {
	cfg := storeConfig()
	db, err := storemod.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := storemod.Migrate(ctx, db); err != nil {
		_ = storemod.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return storemod.NewModule(db, cfg), nil
}

func accountConfig() accountmod.Config {
	jwtCfg := accountmod.DefaultJWTConfig()
	jwtCfg.SecretKey = getEnv("JWT_SECRET", jwtCfg.SecretKey)
	jwtCfg.AccessTokenDuration = getEnvDuration("JWT_ACCESS_TTL", jwtCfg.AccessTokenDuration)
	return accountmod.Config{
		JWT:        jwtCfg,
		SessionTTL: getEnvDuration("SESSION_TTL", 24*time.Hour),
	}
}

func runServe() error {
	storagePath := getEnv("STORAGE_PATH", "/tmp/shop-monolith")
	maxUpload := getEnvInt64("MAX_UPLOAD_SIZE", mediamod.DefaultMaxUpload)
	accountCfg := accountConfig()

	log.Println("=== Shop Monolith ===")
	log.Printf("HTTP Port: %d", httpPort)
	log.Printf("Database: %s", getEnv("DB_DRIVER", "sqlite"))
	log.Printf("Storage Path: %s", storagePath)

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
		mono.WithJetStreamStorageDir(storagePath),
	)
	if err != nil {
		return fmt.Errorf("failed to create mono application: %w", err)
	}

	// Plugins start before modules and receive their consumers via SetPlugin.
	kvPlugin, err := kvjetstream.New(kvjetstream.Config{
		Buckets: []kvjetstream.BucketConfig{
			{
				Name:        accountmod.SessionsBucket,
				Description: "Login and anonymous sessions",
				TTL:         accountCfg.SessionTTL,
				Storage:     kvjetstream.FileStorage,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create kv plugin: %w", err)
	}
	if err := app.RegisterPlugin(kvPlugin, "kv"); err != nil {
		return fmt.Errorf("failed to register kv plugin: %w", err)
	}

	storagePlugin, err := fsjetstream.New(fsjetstream.Config{
		Buckets: mediamod.BucketConfigs(1024*1024*1024, false),
	})
	if err != nil {
		return fmt.Errorf("failed to create storage plugin: %w", err)
	}
	if err := app.RegisterPlugin(storagePlugin, "storage"); err != nil {
		return fmt.Errorf("failed to register storage plugin: %w", err)
	}

	cachePlugin := cachemod.NewPluginModule(cachemod.Config{
		Backend:   getEnv("CACHE_BACKEND", "memory"),
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
	})
	if err := app.RegisterPlugin(cachePlugin, "cache"); err != nil {
		return fmt.Errorf("failed to register cache plugin: %w", err)
	}

	// Middleware must be registered before the modules it wraps.
	requestIDMiddleware, err := requestid.New(requestid.WithHeaderName("X-Request-ID"))
	if err != nil {
		return fmt.Errorf("failed to create requestid middleware: %w", err)
	}
	if err := app.Register(requestIDMiddleware); err != nil {
		return fmt.Errorf("failed to register requestid middleware: %w", err)
	}
	accessLogMiddleware, err := accesslog.New(
		accesslog.WithOutput(os.Stdout),
		accesslog.WithFormat(accesslog.FormatJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to create accesslog middleware: %w", err)
	}
	if err := app.Register(accessLogMiddleware); err != nil {
		return fmt.Errorf("failed to register accesslog middleware: %w", err)
	}

	ctx := context.Background()
	storeModule, err := openStore(ctx)
	if err != nil {
		return err
	}
	repos := storeModule.Repositories()

	accountModule, err := accountmod.NewModule(repos.Users, accountCfg, app.Logger())
	if err != nil {
		return fmt.Errorf("failed to create account module: %w", err)
	}
	shopModule := shopmod.NewModule(repos.Products, repos.Orders, repos.Users, shopmod.Config{
		ExportTTL:  getEnvDuration("EXPORT_TTL", 300*time.Second),
		APIListTTL: getEnvDuration("API_LIST_TTL", 120*time.Second),
	}, app.Logger())
	blogModule := blogmod.NewModule(repos.Blog)
	mediaModule := mediamod.NewModule(maxUpload, app.Logger())
	activityModule := activitymod.NewModule(activitymod.DefaultCapacity)

	throttleModule, err := throttlemod.NewModule(
		throttlemod.WithBackend(getEnv("THROTTLE_BACKEND", throttlemod.BackendMemory)),
		throttlemod.WithLimit(getEnvInt("THROTTLE_LIMIT", 54), getEnvDuration("THROTTLE_WINDOW", time.Minute)),
		throttlemod.WithPerIP(getEnvBool("THROTTLE_PER_IP", false)),
		throttlemod.WithRedisAddr(getEnv("REDIS_ADDR", "localhost:6379")),
	)
	if err != nil {
		return fmt.Errorf("failed to create throttle module: %w", err)
	}

	// Wire up dependencies
	shopModule.Service().SetMedia(mediaModule)

	httpServerModule := httpservermod.NewModule(httpservermod.Config{
		Port:       httpPort,
		BaseURL:    getEnv("BASE_URL", ""),
		SessionTTL: accountCfg.SessionTTL,
	}, httpservermod.Deps{
		Shop:     shopModule.Service(),
		Blog:     blogModule.Service(),
		Accounts: accountModule.Service(),
		Media:    mediaModule,
		Throttle: throttleModule.Middleware(),
		Activity: activityModule,
		Health: map[string]mono.HealthCheckableModule{
			storeModule.Name():    storeModule,
			accountModule.Name():  accountModule,
			shopModule.Name():     shopModule,
			blogModule.Name():     blogModule,
			mediaModule.Name():    mediaModule,
			throttleModule.Name(): throttleModule,
			cachePlugin.Name():    cachePlugin,
		},
	})

	for _, module := range []mono.Module{
		storeModule,
		accountModule,
		shopModule,
		blogModule,
		mediaModule,
		activityModule,
		throttleModule,
		httpServerModule,
	} {
		if err := app.Register(module); err != nil {
			return fmt.Errorf("failed to register module %s: %w", module.Name(), err)
		}
	}

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start app: %w", err)
	}

	log.Println("=== Application Started ===")
	log.Printf("Shop available at http://localhost:%d/shop/", httpPort)
	log.Println("Press Ctrl+C to shutdown")

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

func runCreateUser(ctx context.Context, username string) error {
	storeModule, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer storeModule.Stop(ctx)

	accounts, err := accountmod.NewModule(storeModule.Repositories().Users, accountConfig(), nil)
	if err != nil {
		return fmt.Errorf("failed to create account module: %w", err)
	}
	user, err := accounts.Service().CreateUser(ctx, accountmod.RegisterInput{
		Username: username,
		Email:    userEmail,
		Password: userPassword,
	}, userStaff, userSuperuser)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("Created user %s (id: %d, staff: %t, superuser: %t)", user.Username, user.ID, user.IsStaff, user.IsSuperuser)
	return nil
}

func runCreateProducts(ctx context.Context) error {
	storeModule, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer storeModule.Stop(ctx)

	repos := storeModule.Repositories()
	owner, err := repos.Users.GetByUsername(ctx, seedOwner)
	if err != nil {
		return fmt.Errorf("failed to find owner %q: %w", seedOwner, err)
	}

	shop := shopmod.NewService(repos.Products, repos.Orders, repos.Users, nil, shopmod.Config{})
	products, err := shop.SeedProducts(ctx, owner.ID)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	log.Printf("Products created: %s", strings.Join(names, ", "))
	return nil
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvInt64 returns environment variable as int64 or default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int64 value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
	}
	return defaultValue
}
