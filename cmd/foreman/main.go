package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ironpaw/foreman/internal/api"
	"github.com/ironpaw/foreman/internal/flow"
	"github.com/ironpaw/foreman/internal/genai"
	"github.com/ironpaw/foreman/internal/notify"
	"github.com/ironpaw/foreman/internal/store"
	"github.com/ironpaw/foreman/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Foreman state data
	DefaultStateDir = "/var/lib/foreman"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "foreman.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	notifyOpts := buildNotifyOptions(flags)
	flowOpts := buildFlowOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping Foreman with configured modules")
	slog.Debug("Final configuration", "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr,
		"collect_contact", *flags.collectContact, "emit_leads", *flags.emitLeads)
	if err := api.Run(storeOpts, genaiOpts, notifyOpts, flowOpts, apiOpts); err != nil {
		slog.Error("Foreman failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Foreman exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	OpenAIKey      string
	APIAddr        string
	CollectContact bool
	EmitLeads      bool
	Debug          bool
}

// Flags holds command line flag values
type Flags struct {
	dbDSN          *string
	openaiKey      *string
	apiAddr        *string
	collectContact *bool
	emitLeads      *bool
}

// initializeLogger sets up structured logging; FOREMAN_DEBUG enables debug level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("FOREMAN_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("FOREMAN_STATE_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		CollectContact: util.ParseBoolEnv("FOREMAN_COLLECT_CONTACT", false),
		EmitLeads:      util.ParseBoolEnv("FOREMAN_EMIT_LEADS", true),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FOREMAN_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Default to SQLite in the state directory when no database URL is provided
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"FOREMAN_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"FOREMAN_COLLECT_CONTACT", config.CollectContact,
		"FOREMAN_EMIT_LEADS", config.EmitLeads)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN for the conversation store (overrides $DATABASE_URL)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		collectContact: flag.Bool("collect-contact", config.CollectContact, "also collect contact name, phone, and email (overrides $FOREMAN_COLLECT_CONTACT)"),
		emitLeads:      flag.Bool("emit-leads", config.EmitLeads, "create a lead record when the flow completes (overrides $FOREMAN_EMIT_LEADS)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"collectContact", *flags.collectContact,
		"emitLeads", *flags.emitLeads)

	return flags
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildNotifyOptions constructs lead notifier configuration options.
// Credentials come from the Twilio environment variables inside notify.
func buildNotifyOptions(flags Flags) []notify.Option {
	return nil
}

// buildFlowOptions constructs flow engine configuration options
func buildFlowOptions(flags Flags) []flow.Option {
	var flowOpts []flow.Option
	if *flags.collectContact {
		flowOpts = append(flowOpts, flow.WithQuestionnaire(flow.ContactQuestionnaire()))
	}
	flowOpts = append(flowOpts, flow.WithLeadEmission(*flags.emitLeads))
	return flowOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
