package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"complaintrag/internal/app"
	"complaintrag/internal/config"
	"complaintrag/internal/domain"
	"complaintrag/internal/evaluation"
	"complaintrag/internal/logger"
	"complaintrag/internal/summarizer"
	"complaintrag/internal/tui"
)

const exitTempFail = 75 // EX_TEMPFAIL

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var (
		cfgPath  string
		question string
		eval     bool
		history  bool
		runID    string
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/complaintrag/config.yaml)")
	flag.StringVar(&question, "q", "", "Answer one question, print the answer and its sources, then exit")
	flag.BoolVar(&eval, "eval", false, "Run the evaluation question set and write the markdown report")
	flag.BoolVar(&history, "history", false, "List recorded evaluation runs")
	flag.StringVar(&runID, "run", "", "Print the answers of one recorded evaluation run")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	// The TUI owns the terminal, so only warnings reach stderr there.
	interactive := question == "" && !eval && !history && runID == ""
	level := cfg.Log.Level
	if interactive {
		level = "warn"
	}
	lg, err := logger.New(cfg.Log.Mode, level)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return 1
	}
	defer lg.Sync()
	lg.Info("config loaded", "path", cfgPath, "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if history || runID != "" {
		if err := showHistory(ctx, cfg, runID); err != nil {
			lg.Error("history", "error", err)
			return 1
		}
		return 0
	}

	comp, err := app.Open(ctx, lg, cfg)
	if err != nil {
		lg.Error("startup failed", "error", err)
		return 1
	}
	defer comp.Close()

	switch {
	case question != "":
		return ask(ctx, comp, question)
	case eval:
		if err := runEvaluation(ctx, lg, cfg, comp); err != nil {
			lg.Error("evaluation failed", "error", err)
			return 1
		}
	default:
		m := tui.New(ctx, comp.Pipeline, summarizer.NewFrequencySummarizer(), evaluation.DefaultQuestions)
		if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			lg.Error("tui", "error", err)
			return 1
		}
	}
	return 0
}

// ask prints the answer followed by exactly the excerpts the generator saw.
func ask(ctx context.Context, comp *app.Components, question string) int {
	res, err := comp.Pipeline.Run(ctx, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var ge *domain.GenerationError
		if errors.As(err, &ge) && ge.Retryable() {
			return exitTempFail
		}
		return 1
	}
	fmt.Println(res.Answer)
	for i, text := range res.Excerpts {
		hit := res.Sources[i]
		fmt.Printf("\n--- Source %d (complaint %s, %s, distance %.4f) ---\n%s\n",
			i+1, hit.Record.ComplaintID, hit.Record.Product, hit.Distance, text)
	}
	return 0
}

func runEvaluation(ctx context.Context, lg *logger.Logger, cfg *config.AppConfig, comp *app.Components) error {
	ev := evaluation.New(lg, comp.Pipeline, cfg.Evaluation.SourcesShown)
	rep, err := ev.Evaluate(ctx, evaluation.DefaultQuestions)
	if err != nil {
		return err
	}
	if err := evaluation.SaveMarkdown(cfg.Evaluation.ReportPath, rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	lg.Info("report written", "path", cfg.Evaluation.ReportPath, "questions", len(rep.Rows), "failed", rep.Failed())

	if cfg.Evaluation.HistoryDB == "" {
		return nil
	}
	h, err := evaluation.OpenHistory(ctx, cfg.Evaluation.HistoryDB)
	if err != nil {
		return err
	}
	defer h.Close()
	if err := h.Record(ctx, rep, comp.Embedder.ModelID(), comp.Generator.ModelID()); err != nil {
		return err
	}
	lg.Info("run recorded", "db", cfg.Evaluation.HistoryDB, "run_id", rep.RunID)
	return nil
}

// showHistory lists recent runs, or the answers of runID when it is set.
func showHistory(ctx context.Context, cfg *config.AppConfig, runID string) error {
	if cfg.Evaluation.HistoryDB == "" {
		return domain.ConfigurationErrorf("evaluation.history_db is not set")
	}
	h, err := evaluation.OpenHistory(ctx, cfg.Evaluation.HistoryDB)
	if err != nil {
		return err
	}
	defer h.Close()

	if runID != "" {
		rep, err := h.Report(ctx, runID)
		if err != nil {
			return err
		}
		return evaluation.WriteMarkdown(os.Stdout, rep)
	}

	runs, err := h.Runs(ctx, 20)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tEMBEDDER\tGENERATOR\tQUESTIONS\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04"), r.EmbedderModel, r.GeneratorModel, r.Questions, r.Failed)
	}
	return tw.Flush()
}
