package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/decoycall/decoycall/internal/gateway"
	"github.com/decoycall/decoycall/pkg/ai/llm"
	"github.com/decoycall/decoycall/pkg/ai/stt"
	"github.com/decoycall/decoycall/pkg/ai/tts"
	"github.com/decoycall/decoycall/pkg/bus"
	"github.com/decoycall/decoycall/pkg/directory"
	"github.com/decoycall/decoycall/pkg/plugin"
	_ "github.com/decoycall/decoycall/pkg/plugin/fake"   // register fake providers
	_ "github.com/decoycall/decoycall/pkg/plugin/openai" // register OpenAI LLM
	"github.com/decoycall/decoycall/pkg/session"
	"github.com/decoycall/decoycall/pkg/version"
	"github.com/decoycall/decoycall/pkg/voice"
)

var rootCmd = &cobra.Command{
	Use:   "decoycall",
	Short: "Real-time voice agent engine for vishing-resilience training calls",
	Long: `decoycall runs scripted social-engineering training calls over a
telephony media stream: a bidirectional WebSocket gateway, streaming
speech recognition, an LLM-driven caller persona, and live disclosure
scoring, with a monitoring event stream per call.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins [kind]",
	Short: "List registered providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := []string{"llm", "stt", "tts"}
		if len(args) > 0 {
			kinds = args[:1]
		}
		for _, kind := range kinds {
			fmt.Printf("%s: %v\n", kind, plugin.Names(kind))
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the call engine HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		llmName, _ := cmd.Flags().GetString("llm")
		sttName, _ := cmd.Flags().GetString("stt")
		ttsName, _ := cmd.Flags().GetString("tts")
		storeRaw, _ := cmd.Flags().GetBool("store-raw-transcripts")
		maxTurns, _ := cmd.Flags().GetInt("max-turns")
		demo, _ := cmd.Flags().GetBool("demo")

		logger := setupLogger()
		logger.Info("starting call engine",
			slog.String("service", "decoycall"),
			slog.String("version", version.Version),
			slog.String("addr", addr),
			slog.String("llm", llmName),
			slog.String("stt", sttName),
			slog.String("tts", ttsName))

		llmP, err := buildProvider[llm.LLM]("llm", llmName)
		if err != nil {
			return err
		}
		sttP, err := buildProvider[stt.STT]("stt", sttName)
		if err != nil {
			return err
		}
		ttsP, err := buildProvider[tts.TTS]("tts", ttsName)
		if err != nil {
			return err
		}

		dir := directory.NewInMemory()
		if demo {
			seedDemo(dir, logger)
		}

		eventBus := bus.New(logger)
		sessions := session.NewManager(eventBus)

		gw := gateway.New(gateway.Config{
			STT:                 sttP,
			TTS:                 ttsP,
			LLM:                 llmP,
			Directory:           dir,
			Bus:                 eventBus,
			Sessions:            sessions,
			StoreRawTranscripts: storeRaw,
			Orchestrator:        voice.OrchestratorConfig{MaxTurns: maxTurns},
			Logger:              logger,
		})

		mux := http.NewServeMux()
		mux.Handle("/twilio/stream", gw)
		mux.Handle("GET /monitor/stream/{call_id}", bus.NewSSEHandler(eventBus, logger))
		mux.Handle("/metrics", expvar.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})

		server := &http.Server{Addr: addr, Handler: mux}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	},
}

// buildProvider resolves a registered factory and asserts its type.
func buildProvider[T any](kind, name string) (T, error) {
	var zero T
	factory, ok := plugin.Get(kind, name)
	if !ok {
		return zero, fmt.Errorf("unknown %s provider %q (registered: %v)", kind, name, plugin.Names(kind))
	}
	instance, err := factory(map[string]any{})
	if err != nil {
		return zero, fmt.Errorf("creating %s provider %q: %w", kind, name, err)
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%s provider %q has wrong type %T", kind, name, instance)
	}
	return typed, nil
}

// seedDemo loads one employee, script, and call so a local stream can
// connect immediately. The call id is logged for use as the stream's
// custom parameter.
func seedDemo(dir *directory.InMemory, logger *slog.Logger) {
	empID := uuid.NewString()
	scriptID := uuid.NewString()
	callID := uuid.NewString()

	dir.AddEmployee(directory.Employee{
		ID:         empID,
		FullName:   "Jordan Banks",
		Email:      "jordan.banks@example.com",
		Department: "Finance",
		JobTitle:   "Accounts Payable Specialist",
	})
	dir.AddScript(directory.Script{
		ID:           scriptID,
		Name:         "it-helpdesk-reset",
		SystemPrompt: "You are calling as IT helpdesk support, trying to talk the employee into reading back a password reset code. Stay friendly and plausible. When the conversation has run its course, end your reply with [END_CALL].",
		Greeting:     "Hi, this is Alex from IT support. Do you have a quick minute?",
	})
	dir.AddCall(directory.Call{
		ID:         callID,
		EmployeeID: empID,
		ScriptID:   scriptID,
		Status:     "pending",
	})

	logger.Info("demo call seeded", slog.String("call_id", callID))
}

func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{}
	switch os.Getenv("DECOYCALL_LOG_LEVEL") {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if os.Getenv("DECOYCALL_LOG_FORMAT") == "console" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("llm", "fake", "LLM provider name")
	serveCmd.Flags().String("stt", "fake", "STT provider name")
	serveCmd.Flags().String("tts", "fake", "TTS provider name")
	serveCmd.Flags().Bool("store-raw-transcripts", false, "persist raw turn text alongside redacted text")
	serveCmd.Flags().Int("max-turns", 10, "user turn count that forces a goodbye")
	serveCmd.Flags().Bool("demo", false, "seed one demo employee, script, and call")

	rootCmd.AddCommand(versionCmd, pluginsCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			os.Exit(1)
		}
	}
}
