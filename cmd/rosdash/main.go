package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/template"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	_ "rosdash/internal/cards/diagnosticscreen"
	_ "rosdash/internal/cards/system"
	"rosdash/internal/config"
	"rosdash/internal/handlers"
	"rosdash/internal/middleware"
	"rosdash/internal/monitor"
	"rosdash/internal/panel"
	"rosdash/internal/telemetry"
	"rosdash/internal/utils"
	"rosdash/internal/version"
)

// App holds the long-lived services behind the HTTP surface.
type App struct {
	cfg         *config.Config
	logger      *utils.Logger
	monitor     *monitor.Monitor
	panel       *panel.Panel
	sampler     *telemetry.Sampler
	authService *middleware.AuthService
	wsHub       *middleware.Hub
	rateLimiter *middleware.RateLimiter
	tlsEnabled  bool
	tlsCertPath string
	tlsKeyPath  string
}

const (
	envUseTLS  = "ROSDASH_USE_TLS"
	envTLSCert = "ROSDASH_TLS_CERT"
	envTLSKey  = "ROSDASH_TLS_KEY"
)

func envBool(key string) bool {
	val := os.Getenv(key)
	if val == "" {
		return false
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false
	}
	return parsed
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rosdash",
	Short: "Live ROS 2 diagnostics dashboard over a WebSocket bridge",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(configPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to rosdash.yaml (defaults next to the binary)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	paths := utils.DefaultPaths()
	if configPath == "" {
		configPath = paths.ConfigFile()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = paths.LogFile()
	}
	logger := utils.NewLogger(logFile)
	defer logger.Close()

	if cfg.NamespaceWarning != "" {
		logger.Write(cfg.NamespaceWarning)
	}

	mon := monitor.New(monitor.Options{
		URL:         cfg.BridgeURL(),
		Namespace:   cfg.Namespace,
		StalePeriod: time.Duration(cfg.Panel.StaleSeconds) * time.Second,
		RetryDelay:  time.Duration(cfg.Panel.RetrySeconds) * time.Second,
		HistorySize: cfg.Panel.HistorySize,
		Logger:      logger,
	})

	app := &App{
		cfg:         cfg,
		logger:      logger,
		monitor:     mon,
		panel:       panel.New(mon),
		sampler:     telemetry.NewSampler(),
		authService: middleware.NewAuthService(cfg.Server.JWTSecret, cfg.Server.PasswordHash),
		wsHub:       middleware.NewHub(logger),
		rateLimiter: middleware.NewRateLimiter(rate.Every(time.Minute/300), 30),
		tlsEnabled:  envBool(envUseTLS),
		tlsCertPath: os.Getenv(envTLSCert),
		tlsKeyPath:  os.Getenv(envTLSKey),
	}

	go app.wsHub.Run()
	app.sampler.Start()

	// Every monitor update goes straight to connected browsers; clients
	// that are scrubbing history simply ignore live frames.
	mon.Observe(func(u monitor.Update) {
		app.wsHub.BroadcastJSON(gin.H{
			"type":      "update",
			"state":     string(u.State),
			"connected": u.Connected,
			"cleared":   u.Cleared,
			"snapshot":  u.Snapshot,
		})
	})
	mon.Start()

	r := setupRouter(app)

	srv := &http.Server{
		Addr:           ":" + strconv.Itoa(cfg.Server.Port),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if app.tlsEnabled {
		if app.tlsCertPath == "" || app.tlsKeyPath == "" {
			return fmt.Errorf("%s is enabled but %s or %s not provided", envUseTLS, envTLSCert, envTLSKey)
		}
		go func() {
			log.Printf("Starting HTTPS server on port %d", cfg.Server.Port)
			if err := srv.ListenAndServeTLS(app.tlsCertPath, app.tlsKeyPath); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTPS server failed to start: %v", err)
			}
		}()
	} else {
		go func() {
			log.Printf("Starting server on port %d", cfg.Server.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed to start: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Monitor first, so no snapshot lands in a half-torn-down app.
	app.monitor.Stop()
	app.sampler.Stop()
	app.rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server exited")
	return nil
}

func setupRouter(app *App) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(app.rateLimiter.Middleware())

	r.SetFuncMap(template.FuncMap{
		"mul": func(a, b int) int { return a * b },
	})
	r.LoadHTMLGlob("templates/*")
	r.Static("/static", "./static")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.String()})
	})

	authHandlers := handlers.NewAuthHandlers(app.authService)
	panelHandlers := handlers.NewPanelHandlers(app.panel, app.monitor, app.cfg, app.sampler)

	auth := r.Group("/")
	{
		auth.GET("/login", authHandlers.LoginGET)
		auth.POST("/login", authHandlers.LoginPOST)
		auth.GET("/logout", authHandlers.Logout)
	}

	r.POST("/api/login", authHandlers.APILogin)

	api := r.Group("/api")
	api.Use(app.authService.RequireAPIAuth())
	{
		api.GET("/status", panelHandlers.APIStatus)
		api.GET("/diagnostics/tree", panelHandlers.APITree)
		api.GET("/diagnostics/errors", panelHandlers.APIErrors)
		api.GET("/diagnostics/warnings", panelHandlers.APIWarnings)
		api.GET("/diagnostics/detail", panelHandlers.APIDetail)
		api.GET("/diagnostics/history", panelHandlers.APIHistory)
		api.POST("/diagnostics/select", panelHandlers.APISelect)
		api.POST("/diagnostics/toggle", panelHandlers.APIToggle)
		api.POST("/diagnostics/history/pin/:step", panelHandlers.APIPin)
		api.POST("/diagnostics/history/resume", panelHandlers.APIResume)
		api.POST("/diagnostics/history/clear", panelHandlers.APIClearHistory)
		api.GET("/system", panelHandlers.APISystem)
	}

	protected := r.Group("/")
	protected.Use(app.authService.RequireAuth())
	{
		protected.GET("/", panelHandlers.Dashboard)
		protected.GET("/cards/:card_id", panelHandlers.CardGET)
	}

	r.GET("/ws", app.wsHub.HandleWebSocket())

	return r
}
