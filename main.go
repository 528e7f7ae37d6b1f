package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DavidGamba/go-getoptions"
	"github.com/cyverse-de/go-mod/otelutils"
	"github.com/freshbasket/notification-sync/config"
	"github.com/freshbasket/notification-sync/db"
	"github.com/freshbasket/notification-sync/logging"
	"github.com/freshbasket/notification-sync/session"
	"github.com/freshbasket/notification-sync/statusapi"
)

const serviceName = "notification-sync"

var log = logging.Log

// commandLineOptionValues represents the values of the command-line options that were passed on the command line when
// this service was invoked.
type commandLineOptionValues struct {
	Config   string
	EnvFile  string
	LogLevel string
}

func parseCommandLine() *commandLineOptionValues {
	optionValues := &commandLineOptionValues{}
	opt := getoptions.New()

	// Default option values.
	defaultConfigPath := "/etc/freshbasket/notification-sync.yml"

	// Define the command-line options.
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&optionValues.Config, "config", defaultConfigPath,
		opt.Alias("c"),
		opt.Description("the path to the configuration file"))
	opt.StringVar(&optionValues.EnvFile, "env-file", ".env",
		opt.Description("the path to a file of environment variable settings"))
	opt.StringVar(&optionValues.LogLevel, "log-level", "",
		opt.Description("the log level, overriding log.level in the configuration file"))

	// Parse the command line, handling requests for help and usage errors.
	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}

	return optionValues
}

func main() {
	// Parse the command-line.
	optionValues := parseCommandLine()

	// Environment variable settings take precedence over the configuration file.
	if err := config.LoadEnvFile(optionValues.EnvFile); err != nil {
		log.Fatal(err)
	}

	// Read in the configuration file.
	settings, err := config.Load(optionValues.Config)
	if err != nil {
		log.Fatal(err)
	}

	// Initialize logging.
	logLevel := settings.LogLevel
	if optionValues.LogLevel != "" {
		logLevel = optionValues.LogLevel
	}
	if err := logging.SetupLogging(logLevel); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := otelutils.TracerProviderFromEnv(ctx, serviceName, func(e error) { log.Fatal(e) })
	defer shutdownTracer()

	opts := session.Options{Settings: *settings}

	// Open the event journal if it's enabled.
	if settings.Journal.Enabled {
		dbconn, err := db.InitDatabase(ctx, settings.Journal)
		if err != nil {
			log.Fatal(err)
		}
		opts.DB = dbconn
	}

	// Start the notification session.
	s, err := session.New(opts)
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Start(ctx); err != nil {
		log.Fatal(err)
	}

	// Start the status API if it's enabled.
	var server *statusapi.Server
	if settings.StatusListen != "" {
		deps := statusapi.Dependencies{
			State:      s.Store,
			Operations: s.Reconciler,
			Gatherer:   s.Registry,
			Connected:  s.Connected,
		}
		if settings.Journal.Enabled {
			deps.JournalCount = s.JournalCount
		}
		server, err = statusapi.Listen(settings.StatusListen, statusapi.NewRouter(deps))
		if err != nil {
			log.Fatal(err)
		}
		server.Serve()
	}

	<-ctx.Done()
	log.Info("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error(err)
		}
	}
	if err := s.Close(); err != nil {
		log.Error(err)
	}
}
