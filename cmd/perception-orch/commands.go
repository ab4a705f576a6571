package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brandlens/perception-orchestrator/internal/config"
	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/events"
	"github.com/brandlens/perception-orchestrator/internal/notify"
	"github.com/brandlens/perception-orchestrator/internal/orchestrator"
	"github.com/brandlens/perception-orchestrator/internal/provider"
	"github.com/brandlens/perception-orchestrator/internal/report"
	"github.com/brandlens/perception-orchestrator/internal/schedule"
	"github.com/brandlens/perception-orchestrator/internal/store"
	"github.com/brandlens/perception-orchestrator/internal/watch"
	"github.com/brandlens/perception-orchestrator/web/api"
)

var (
	runPipelineType string
	projectName     string
	projectBrand    string
	competitors     []string
	enabledModels   []string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server with scheduler and template watcher",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	runCmd := &cobra.Command{
		Use:   "run PROJECT_ID",
		Short: "Run a full analysis batch (or one pipeline) for a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	runCmd.Flags().StringVar(&runPipelineType, "pipeline", "", "run a single pipeline type instead of the full batch")
	rootCmd.AddCommand(runCmd)

	reportCmd := &cobra.Command{
		Use:   "report EXECUTION_ID",
		Short: "Generate a report from a completed batch execution",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}
	rootCmd.AddCommand(reportCmd)

	promptsetCmd := &cobra.Command{
		Use:   "promptset PROJECT_ID",
		Short: "Regenerate a project's prompt set from the templates",
		Args:  cobra.ExactArgs(1),
		RunE:  runPromptSet,
	}
	rootCmd.AddCommand(promptsetCmd)

	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects",
		RunE:  runListProjects,
	}
	setCmd := &cobra.Command{
		Use:   "set PROJECT_ID",
		Short: "Create or update a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runSetProject,
	}
	setCmd.Flags().StringVar(&projectName, "name", "", "display name")
	setCmd.Flags().StringVar(&projectBrand, "brand", "", "brand under study (required)")
	setCmd.Flags().StringSliceVar(&competitors, "competitors", nil, "competitor brand names")
	setCmd.Flags().StringSliceVar(&enabledModels, "models", nil, "enabled models as provider/model")
	projectsCmd.AddCommand(setCmd)
	rootCmd.AddCommand(projectsCmd)

	statusCmd := &cobra.Command{
		Use:   "status PROJECT_ID",
		Short: "List a project's batch executions",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// buildEngine wires the store, bus, providers and engine from config
func buildEngine(cfg *config.Config) (*orchestrator.Engine, *store.Store, *events.Bus, error) {
	st, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	registry := provider.NewRegistry()
	registry.Register("openai", provider.NewOpenAIClient(cfg.Providers.OpenAI))

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Notifications.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notifications.WebhookURL)
	}

	bus := events.NewBus()
	engine, err := orchestrator.New(cfg, st, bus, registry, report.NewGenerator(st, notifier))
	if err != nil {
		st.Close()
		bus.Close()
		return nil, nil, nil, err
	}
	return engine, st, bus, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, st, bus, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Template edits regenerate every project's prompt set
	watcher, err := watch.NewTemplateWatcher(cfg.General.TemplateDir, func(changed []string) {
		log.Printf("[serve] %d template(s) changed, regenerating prompt sets", len(changed))
		projects, err := st.ListProjects()
		if err != nil {
			log.Printf("[serve] list projects: %v", err)
			return
		}
		for _, p := range projects {
			if _, err := engine.RegeneratePromptSet(p.ID); err != nil {
				log.Printf("[serve] regenerate prompt set for %s: %v", p.ID, err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("template watcher: %w", err)
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	if len(cfg.Schedule.Batches) > 0 {
		scheduler, err := schedule.NewScheduler(cfg.Schedule.Batches)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		go scheduler.Start(ctx, func(ctx context.Context, projectID string) error {
			_, err := engine.RunFullBatch(ctx, projectID)
			return err
		})
		defer scheduler.Stop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(engine, st, bus, engine.Gate(), addr)
	log.Printf("[serve] listening on %s", addr)
	return server.Start(ctx)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, st, bus, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exec *domain.BatchExecution
	if runPipelineType != "" {
		exec, err = engine.RunPipeline(ctx, args[0], domain.PipelineType(runPipelineType))
	} else {
		exec, err = engine.RunFullBatch(ctx, args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("Execution %s %s\n", exec.ID, exec.Status)
	for _, r := range exec.FinalResults {
		var pretty map[string]interface{}
		if json.Unmarshal(r.Payload, &pretty) == nil {
			out, _ := json.MarshalIndent(pretty, "  ", "  ")
			fmt.Printf("  %s: %s\n", r.PipelineType, out)
		}
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	rep, err := report.NewGenerator(st, nil).Generate(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Report %s generated from execution %s (%d results)\n",
		rep.ID, rep.BatchExecutionID, len(rep.Results))
	return nil
}

func runPromptSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, st, bus, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	defer bus.Close()

	set, err := engine.RegeneratePromptSet(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Prompt set v%d generated for %s\n", set.Version, set.ProjectID)
	for _, pt := range domain.AllPipelineTypes {
		fmt.Printf("  %s: %d prompts\n", pt, len(set.For(pt)))
	}
	return nil
}

func runListProjects(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	projects, err := st.ListProjects()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBRAND\tMODELS")
	for _, p := range projects {
		models := make([]string, len(p.EnabledModels))
		for i, m := range p.EnabledModels {
			models[i] = m.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Brand, strings.Join(models, ","))
	}
	return w.Flush()
}

func runSetProject(cmd *cobra.Command, args []string) error {
	if projectBrand == "" {
		return fmt.Errorf("--brand is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	var models []domain.ModelRef
	for _, m := range enabledModels {
		providerName, model, ok := strings.Cut(m, "/")
		if !ok {
			return fmt.Errorf("invalid model %q, want provider/model", m)
		}
		models = append(models, domain.ModelRef{Provider: providerName, Model: model})
	}

	name := projectName
	if name == "" {
		name = projectBrand
	}

	project := &domain.Project{
		ID:            args[0],
		Name:          name,
		Brand:         projectBrand,
		Competitors:   competitors,
		EnabledModels: models,
	}
	if err := st.UpsertProject(project); err != nil {
		return err
	}

	fmt.Printf("Project %s saved\n", project.ID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	execs, err := st.ListExecutions(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEXECUTED\tSTATUS\tRESULTS\tERROR")
	for _, e := range execs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			e.ID, e.ExecutedAt.Format("2006-01-02 15:04:05"), e.Status, len(e.FinalResults), e.Error)
	}
	return w.Flush()
}
