package cmd

import (
	"context"
	"errors"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/smartdl/internal/engine"
	"github.com/tanq16/smartdl/internal/output"
	"github.com/tanq16/smartdl/internal/scheduler"
	"github.com/tanq16/smartdl/internal/utils"
)

var (
	threads        int
	timeout        time.Duration
	kaTimeout      time.Duration
	readTimeout    time.Duration
	speedLimit     int64
	minChunkSize   int64
	retries        int
	userAgent      string
	proxyURL       string
	proxyUsername  string
	proxyPassword  string
	username       string
	password       string
	bearerToken    string
	headers        []string
	debug          bool
	skipSpaceCheck bool
	s3Profile      string
	s3Region       string
	s3Endpoint     string
	s3PathStyle    bool
	metricsAddr    string
	logFile        string
)

var SmartDLVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "smartdl",
	Short:   "smartdl downloads files over many connections from many mirrors",
	Version: SmartDLVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				fmt.Fprintln(os.Stderr, output.FError(fmt.Sprintf("Cannot open log file: %v", err)))
				os.Exit(1)
			}
			utils.SetLogOutput(f)
		}
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("op", "cmd/root").Err(err).Msg("could not read .env")
		}
		loadEnvCredentials()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.IntVarP(&threads, "threads", "c", utils.DefaultThreads, "Connections per download (above 5 enables high-thread-mode)")
	flags.DurationVarP(&timeout, "timeout", "t", utils.DefaultConnectTimeout, "Connect timeout per mirror (eg. 5s, 1m)")
	flags.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for idle connections (eg. 10s, 1m)")
	flags.DurationVar(&readTimeout, "read-timeout", 0, "Give up on a mirror that sends nothing for this long (defaults to --timeout)")
	flags.Int64VarP(&speedLimit, "limit", "L", 0, "Speed limit in bytes per second across all connections (0 is unlimited)")
	flags.Int64Var(&minChunkSize, "min-chunk", utils.DefaultMinChunkSize, "Smallest chunk in bytes before fewer connections are used")
	flags.IntVar(&retries, "retries", utils.DefaultRetriesPerMirror, "Retries per mirror before failing over")
	flags.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringVarP(&username, "user", "u", "", "Basic auth username (or SMARTDL_USERNAME)")
	flags.StringVar(&password, "password", "", "Basic auth password (or SMARTDL_PASSWORD)")
	flags.StringVar(&bearerToken, "bearer", "", "Bearer token (or SMARTDL_BEARER_TOKEN)")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'X-Token: abc'); can be specified multiple times")
	flags.StringVar(&s3Profile, "s3-profile", "", "AWS profile for s3:// mirrors")
	flags.StringVar(&s3Region, "s3-region", "", "AWS region for s3:// mirrors")
	flags.StringVar(&s3Endpoint, "s3-endpoint", "", "Endpoint for S3-compatible stores")
	flags.BoolVar(&s3PathStyle, "s3-path-style", false, "Use path-style addressing for s3:// mirrors")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while downloading (eg. :9090)")
	flags.BoolVar(&skipSpaceCheck, "skip-space-check", false, "Do not check free disk space before downloading")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}

// loadEnvCredentials fills credentials the flags left empty.
func loadEnvCredentials() {
	if username == "" {
		username = os.Getenv("SMARTDL_USERNAME")
	}
	if password == "" {
		password = os.Getenv("SMARTDL_PASSWORD")
	}
	if bearerToken == "" {
		bearerToken = os.Getenv("SMARTDL_BEARER_TOKEN")
	}
}

func buildConfig() engine.Config {
	agent := userAgent
	if agent == "randomize" {
		agent = utils.GetRandomUserAgent()
	}
	proxy, proxyUser, proxyPass := proxyURL, proxyUsername, proxyPassword
	// credentials embedded in the proxy URL are sent separately
	parsedProxy, err := u.Parse(proxy)
	if err == nil && parsedProxy.User != nil && proxyUser == "" {
		proxyUser = parsedProxy.User.Username()
		if pass, set := parsedProxy.User.Password(); set {
			proxyPass = pass
		}
		parsedProxy.User = nil
		proxy = parsedProxy.String()
	}
	cfg := engine.Config{
		Threads:          threads,
		ConnectTimeout:   timeout,
		KeepAliveTimeout: kaTimeout,
		ReadTimeout:      readTimeout,
		SpeedLimit:       speedLimit,
		MinChunkSize:     minChunkSize,
		RetriesPerMirror: retries,
		Headers:          utils.ParseHeaderArgs(headers),
		UserAgent:        agent,
		BearerToken:      bearerToken,
		ProxyURL:         proxy,
		ProxyUsername:    proxyUser,
		ProxyPassword:    proxyPass,
		SkipSpaceCheck:   skipSpaceCheck,
		S3: utils.S3Config{
			Profile:      s3Profile,
			Region:       s3Region,
			Endpoint:     s3Endpoint,
			UsePathStyle: s3PathStyle,
		},
	}
	if username != "" {
		cfg.BasicAuth = &engine.BasicAuth{Username: username, Password: password}
	}
	return cfg
}

// runJobs drives jobs to completion and exits non-zero if any did not
// finish. Interrupts stop running downloads and clean their parts.
func runJobs(jobs []scheduler.Job, workers int) {
	collector, stopMetrics, err := startMetrics(metricsAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, output.FError(fmt.Sprintf("Metrics unavailable: %v", err)))
		os.Exit(1)
	}
	defer stopMetrics()
	for i := range jobs {
		jobs[i].Config.Metrics = collector
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := output.NewManager(os.Stdout)
	out.StartDisplay()
	err = scheduler.Run(ctx, jobs, workers, out)
	out.StopDisplay()
	if err != nil {
		log.Debug().Str("op", "cmd/root").Err(err).Msg("batch finished with failures")
		stopMetrics()
		os.Exit(1)
	}
}
