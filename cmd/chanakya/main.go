// Command chanakya runs the classroom assistant: an HTTP server for the
// request pipeline, plus one-shot subcommands for asking, textbook queries,
// teaching feedback, and store maintenance.
//
// Usage:
//
//	chanakya serve --config config.yaml
//	chanakya ask "suggest an activity for teaching fractions"
//	chanakya query "what is photosynthesis" --class 7
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/chanakya-ai/chanakya/pkg/config"
	"github.com/chanakya-ai/chanakya/pkg/embedders"
	"github.com/chanakya-ai/chanakya/pkg/feedback"
	"github.com/chanakya-ai/chanakya/pkg/language"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/memory"
	"github.com/chanakya-ai/chanakya/pkg/model"
	"github.com/chanakya-ai/chanakya/pkg/model/gemini"
	"github.com/chanakya-ai/chanakya/pkg/observability"
	"github.com/chanakya-ai/chanakya/pkg/orchestrator"
	"github.com/chanakya-ai/chanakya/pkg/quality"
	"github.com/chanakya-ai/chanakya/pkg/rag"
	"github.com/chanakya-ai/chanakya/pkg/server"
	"github.com/chanakya-ai/chanakya/pkg/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server."`
	Ask      AskCmd      `cmd:"" help:"Run one request through the pipeline."`
	Query    QueryCmd    `cmd:"" help:"Ask a question against the textbook corpus."`
	Feedback FeedbackCmd `cmd:"" help:"Analyze a teaching-session transcript."`
	Sweep    SweepCmd    `cmd:"" help:"Delete sessions older than the retention window."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("chanakya %s\n", version)
	return nil
}

// app holds the wired core used by every command that needs the pipeline.
type app struct {
	cfg    *config.Config
	llm    model.LLM
	store  *memory.Store
	mem    *memory.Service
	engine *orchestrator.Engine
	obs    *observability.Manager

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cli *CLI) (*app, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	a.obs = observability.NewManager(cfg.Observability)
	if err := a.obs.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.obs.Shutdown(context.Background()) })

	a.llm, err = gemini.New(gemini.Config{
		APIKey:          cfg.Model.APIKey,
		Model:           cfg.Model.Name,
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
		Temperature:     cfg.Model.Temperature,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.llm.Close() })

	a.store, err = memory.NewStore(cfg.Memory.StorePath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.store.Close() })

	a.mem = memory.NewService(a.store, memory.NewLLMSummarizer(a.llm), memory.Config{
		SessionCacheMax:     cfg.Memory.SessionCacheMax,
		SummarizeThreshold:  cfg.Memory.SummarizeThreshold,
		SummarizeKeepRecent: cfg.Memory.SummarizeKeepRecent,
		ContextWindow:       cfg.Engine.ContextWindow,
	})

	reg := tools.NewRegistry()
	for name, tool := range map[string]tools.Tool{
		tools.ActivityGeneratorName: tools.NewActivityGenerator(a.llm),
		tools.CrisisHandlerName:     tools.NewCrisisHandler(a.llm),
		tools.TeacherMotivationName: tools.NewTeacherMotivation(a.llm),
	} {
		if err := reg.Register(name, tool); err != nil {
			a.Close()
			return nil, err
		}
	}

	gate := quality.NewGate(a.llm, cfg.Engine.QualityMin, cfg.Engine.QualityTimeout)
	translator := language.NewTranslator(a.llm, cfg.Engine.TranslationTimeout)
	a.engine = orchestrator.New(a.llm, a.mem, reg, gate, translator, cfg.Engine)
	return a, nil
}

// buildRetrieval wires the corpus store and embedder. An empty corpus is
// fine; queries then get the canned no-match answer.
func (a *app) buildRetrieval() (*rag.Engine, error) {
	embedder, err := embedders.New(embedders.Config{
		Provider:  a.cfg.Retrieval.Embedder.Provider,
		Model:     a.cfg.Retrieval.Embedder.Model,
		BaseURL:   a.cfg.Retrieval.Embedder.BaseURL,
		APIKey:    a.cfg.Model.APIKey,
		Dimension: a.cfg.Retrieval.Embedder.Dimension,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = embedder.Close() })

	corpus, err := rag.NewStore(a.cfg.Retrieval.CorpusPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = corpus.Close() })

	return rag.NewEngine(corpus, embedder, a.llm, rag.Config{
		TopK:              a.cfg.Retrieval.TopK,
		GenerationTimeout: a.cfg.Retrieval.GenerationTimeout,
		MaxOutputTokens:   a.cfg.Model.MaxOutputTokens,
	}), nil
}

func (a *app) buildFeedback() (*feedback.Analyzer, *feedback.Store, error) {
	store, err := feedback.NewStore(a.cfg.Feedback.StorePath)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, func() { _ = store.Close() })
	return feedback.NewAnalyzer(a.llm, store, a.cfg.Engine.ToolTimeout), store, nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.GetLogger().Info("shutting_down")
		cancel()
	}()

	a, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.Port != 0 {
		a.cfg.Server.Port = c.Port
	}

	answers, err := a.buildRetrieval()
	if err != nil {
		return fmt.Errorf("failed to wire retrieval: %w", err)
	}
	analyzer, fbStore, err := a.buildFeedback()
	if err != nil {
		return fmt.Errorf("failed to wire feedback: %w", err)
	}

	srv := server.New(a.cfg.Server, a.engine,
		server.WithRetrieval(answers),
		server.WithFeedback(analyzer, fbStore))

	fmt.Printf("chanakya server ready\n")
	fmt.Printf("  Process:  http://%s/v1/process\n", srv.Address())
	fmt.Printf("  Stream:   http://%s/v1/process/stream\n", srv.Address())
	fmt.Printf("  Query:    http://%s/v1/query\n", srv.Address())
	fmt.Printf("  Feedback: http://%s/v1/feedback\n", srv.Address())
	fmt.Printf("  Health:   http://%s/healthz\n", srv.Address())
	fmt.Println("\nPress Ctrl+C to stop")

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Start(gctx)
	})
	group.Go(func() error {
		return runRetentionSweeps(gctx, a.mem, a.cfg.Memory.RetentionDays)
	})
	return group.Wait()
}

// runRetentionSweeps enforces the retention window once at startup and then
// daily until the context ends.
func runRetentionSweeps(ctx context.Context, mem *memory.Service, retentionDays int) error {
	log := logger.GetLogger()

	sweep := func() {
		removed, err := mem.Sweep(ctx, retentionDays)
		if err != nil {
			log.Warn("retention_sweep_failed", "error", err)
			return
		}
		if removed > 0 {
			log.Info("retention_sweep", "removed", removed, "retention_days", retentionDays)
		}
	}

	sweep()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

// AskCmd runs one utterance through the pipeline and prints the response.
type AskCmd struct {
	Text      string `arg:"" help:"The request text."`
	Session   string `help:"Session identifier (minted when empty)."`
	Grade     string `help:"Class grade, e.g. 5."`
	Subject   string `help:"Subject, e.g. Science."`
	ClassSize int    `name:"class-size" help:"Number of students."`
	Stream    bool   `help:"Print stage events as they happen."`
}

func (c *AskCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	utt := &orchestrator.Utterance{
		Text:      c.Text,
		SessionID: c.Session,
		Context:   map[string]any{},
	}
	if c.Grade != "" {
		utt.Context["grade"] = c.Grade
	}
	if c.Subject != "" {
		utt.Context["subject"] = c.Subject
	}
	if c.ClassSize > 0 {
		utt.Context["class_size"] = c.ClassSize
	}

	if c.Stream {
		for event := range a.engine.ProcessStreaming(ctx, utt) {
			switch event.Type {
			case orchestrator.EventStageCompleted:
				fmt.Printf("· %s\n", event.Stage)
			case orchestrator.EventFinal:
				return printJSON(event.Response)
			case orchestrator.EventError:
				return fmt.Errorf("%s", event.Error)
			}
		}
		return nil
	}

	resp, err := a.engine.Process(ctx, utt)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

// QueryCmd answers a question from the textbook corpus.
type QueryCmd struct {
	Question string `arg:"" help:"The question to answer."`
	Class    string `help:"Restrict to one class."`
	Subject  string `help:"Restrict to one subject."`
	Language string `help:"Restrict to one corpus language."`
}

func (c *QueryCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	answers, err := a.buildRetrieval()
	if err != nil {
		return err
	}

	answer, err := answers.Answer(ctx, c.Question, rag.Filters{
		Class:    c.Class,
		Subject:  c.Subject,
		Language: c.Language,
	})
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range answer.Sources {
			fmt.Printf("  %s\n", src.Header())
		}
	}
	return nil
}

// FeedbackCmd analyzes a teaching-session transcript.
type FeedbackCmd struct {
	Transcript string `arg:"" optional:"" help:"Transcript text (or use --file)."`
	File       string `help:"Read the transcript from a file." type:"path"`
	Topic      string `required:"" help:"Topic taught, e.g. fractions."`
	Grade      string `required:"" help:"Student grade level."`
	Duration   int    `help:"Session duration in minutes."`
	Language   string `help:"Language of instruction." default:"en"`
	Teacher    string `help:"Teacher identifier for history tracking."`
}

func (c *FeedbackCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	transcript := c.Transcript
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return fmt.Errorf("failed to read transcript file: %w", err)
		}
		transcript = string(data)
	}
	if transcript == "" {
		return fmt.Errorf("a transcript argument or --file is required")
	}

	analyzer, _, err := a.buildFeedback()
	if err != nil {
		return err
	}

	card, err := analyzer.Analyze(ctx, &feedback.Session{
		Transcript:      transcript,
		Topic:           c.Topic,
		GradeLevel:      c.Grade,
		DurationMinutes: c.Duration,
		Language:        c.Language,
		TeacherID:       c.Teacher,
	})
	if err != nil {
		return err
	}
	return printJSON(card)
}

// SweepCmd enforces the retention window on the durable store.
type SweepCmd struct {
	RetentionDays int `name:"retention-days" help:"Override the configured retention window."`
}

func (c *SweepCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	days := c.RetentionDays
	if days <= 0 {
		days = a.cfg.Memory.RetentionDays
	}

	start := time.Now()
	removed, err := a.mem.Sweep(ctx, days)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d sessions older than %d days in %s\n",
		removed, days, time.Since(start).Round(time.Millisecond))
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("chanakya"),
		kong.Description("Chanakya - classroom assistant for rural school teachers"),
		kong.UsageOnError(),
	)

	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), output, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
