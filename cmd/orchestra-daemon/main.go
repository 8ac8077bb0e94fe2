package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"orchestra/internal/agent"
	"orchestra/internal/api"
	"orchestra/internal/audio"
	"orchestra/internal/bus"
	"orchestra/internal/config"
	"orchestra/internal/conversation"
	"orchestra/internal/ipc"
	"orchestra/internal/notify"
	"orchestra/internal/orchestra"
	"orchestra/internal/proxy"
	"orchestra/internal/recognition"
	"orchestra/internal/registry"
	"orchestra/internal/synth"
	"orchestra/internal/tracker"
	"orchestra/internal/tts"
	"orchestra/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address (overrides SOCKS_PROXY)")
	input := cli.StringP("input", "i", "", "Replay an audio file instead of the microphone")
	triggersFile := cli.StringP("triggers", "t", "", "Trigger catalogue YAML (overrides TRIGGERS_FILE)")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[*logLevel],
		TimeFormat: time.Kitchen,
	})))

	log.Info("Booting up")

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	if *proxyAddr != "" {
		cfg.SocksProxy = *proxyAddr
	}
	if *triggersFile != "" {
		cfg.TriggersFile = *triggersFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewHTTPClient(cfg.SocksProxy, 120*time.Second)
	if err != nil {
		log.Error("Failed to set up socks proxy", "proxy", cfg.SocksProxy, "err", err)
		os.Exit(1)
	}

	backend := api.NewClient(api.Config{
		BaseURL:       cfg.APIBaseURL,
		Timeout:       cfg.APITimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		HTTPClient:    httpClient,
	})
	if h, err := backend.WaitHealthy(ctx); err != nil {
		log.Warn("Backend not reachable, automations will fail until it is up", "url", cfg.APIBaseURL, "err", err)
	} else {
		log.Info("Backend healthy", "status", h.Status, "version", h.Version)
	}

	reg := registry.Builtin()
	if cfg.TriggersFile != "" {
		if reg, err = registry.LoadFile(cfg.TriggersFile); err != nil {
			log.Error("Failed to load triggers", "file", cfg.TriggersFile, "err", err)
			os.Exit(1)
		}
	}
	log.Debug("Loaded triggers", "count", reg.Len())

	ag, err := newAgent(cfg, backend, httpClient)
	if err != nil {
		log.Error("Failed to set up agent", "provider", cfg.AgentProvider, "err", err)
		os.Exit(1)
	}

	recognizer, cleanup := newRecognizer(cfg, reg, *input)
	defer cleanup()

	var engine synth.Engine
	if espeak, err := tts.NewEspeak(cfg.SpeechLanguage); err != nil {
		log.Warn("Speech synthesis disabled", "err", err)
	} else {
		defer espeak.Close()
		engine = espeak
	}

	var ducker synth.Ducker
	if cfg.DuckFactor > 0 {
		ducker = audio.NewDucker([]string{"espeak", "orchestra"}, cfg.DuckFactor, 5, 250*time.Millisecond)
	}

	recent := notify.NewRecorder(20)
	core := orchestra.New(orchestra.Config{
		Registry:   reg,
		Backend:    backend,
		Agent:      ag,
		Recognizer: recognizer,
		Engine:     engine,
		Ducker:     ducker,
		Notifier:   notify.Multi{notify.Log{}, notify.Desktop{App: "Orchestra"}, recent},
		Tracker: tracker.Options{
			Capacity: cfg.ActivityCapacity,
			Tick:     cfg.ProgressTick,
			MinStep:  cfg.ProgressStepMin,
			MaxStep:  cfg.ProgressStepMax,
		},
		Cue: func() error { return notify.Beep(cfg.BeepFile) },
	})
	defer core.Close()

	if cfg.BusURL != "" {
		bridge, err := bus.Dial(cfg.BusURL, "orchestra", 5*time.Second, core)
		if err != nil {
			log.Warn("Bus unavailable", "url", cfg.BusURL, "err", err)
		} else {
			go func() {
				if err := bridge.Run(ctx); err != nil {
					log.Error("Bus bridge stopped", "err", err)
				}
			}()
		}
	}

	srv, err := ipc.StartServer(cfg.SocketPath, handler(ctx, core, backend))
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	log.Info("Boot up - successful", "socket", cfg.SocketPath)
	<-ctx.Done()
	log.Info("Shutting down")
}

func newAgent(cfg config.Config, backend *api.Client, hc *http.Client) (conversation.Agent, error) {
	base := agent.NewBackend(backend)

	switch cfg.AgentProvider {
	case config.ProviderOpenAI:
		client := openai.NewClient(
			option.WithAPIKey(cfg.OpenAIKey),
			option.WithHTTPClient(hc),
		)
		return agent.NewOpenAI(client, cfg.AgentModel, base), nil
	case config.ProviderCompat:
		return agent.NewCompat(cfg.OpenAIKey, cfg.AgentBaseURL, cfg.AgentModel, hc, base), nil
	case config.ProviderBackend:
		return base, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.AgentProvider)
}

// newRecognizer returns nil when no whisper model or capture source is
// available; the core then reports recognition as unsupported.
func newRecognizer(cfg config.Config, reg *registry.Registry, input string) (orchestra.Recognizer, func()) {
	nop := func() {}
	if cfg.WhisperModel == "" {
		log.Warn("WHISPER_MODEL not set, speech recognition disabled")
		return nil, nop
	}

	names := make([]string, 0, reg.Len())
	for _, t := range reg.Triggers() {
		names = append(names, t.Name)
	}
	whisper, err := stt.NewTranscriber(cfg.WhisperModel, stt.Options{
		Language:      cfg.SpeechLanguage,
		InitialPrompt: "Commands: " + strings.Join(names, ", ") + ".",
	})
	if err != nil {
		log.Warn("Failed to load whisper, speech recognition disabled", "err", err)
		return nil, nop
	}
	log.Debug("Loaded whisper")

	opts := recognition.DefaultOptions()
	opts.PartialEvery = cfg.PartialInterval

	if input != "" {
		src := recognition.FileSource{Path: input, Pad: opts.SampleRate}
		return recognition.NewSession(src, whisper, opts), func() { whisper.Close() }
	}

	mic := audio.NewMicrophone()
	if err := mic.Init(); err != nil {
		log.Warn("Failed to init audio, speech recognition disabled", "err", err)
		whisper.Close()
		return nil, nop
	}
	log.Debug("Loaded recorder")

	return recognition.NewSession(mic, whisper, opts), func() {
		mic.Close()
		whisper.Close()
	}
}

func handler(ctx context.Context, core *orchestra.Core, backend *api.Client) ipc.Handler {
	return func(req ipc.Request) ipc.Response {
		var (
			data any
			err  error
		)

		switch req.Cmd {
		case ipc.CmdListen:
			err = core.StartListening()
		case ipc.CmdStop:
			core.StopListening()
		case ipc.CmdToggle:
			data = map[string]conversation.Mode{"mode": core.ToggleMode()}
		case ipc.CmdSay:
			err = core.SubmitText(ctx, req.Text)
		case ipc.CmdTrigger:
			err = core.Trigger(ctx, req.Trigger, req.Sub)
		case ipc.CmdCancelSpeech:
			core.CancelSpeech()
		case ipc.CmdStatus:
		case ipc.CmdHealth:
			data, err = backend.Health(ctx)
		case ipc.CmdAutomations:
			data, err = backend.Automations(ctx)
		default:
			log.Warn("Unknown command", "cmd", req.Cmd)
			return ipc.Fail(fmt.Errorf("unknown command %q", req.Cmd))
		}
		if err != nil {
			return ipc.Fail(err)
		}

		resp := ipc.Response{OK: true}
		if resp.Snapshot, err = json.Marshal(core.Snapshot()); err != nil {
			return ipc.Fail(err)
		}
		if data != nil {
			if resp.Data, err = json.Marshal(data); err != nil {
				return ipc.Fail(err)
			}
		}
		return resp
	}
}
