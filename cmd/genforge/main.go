// Package main implements the genforge CLI entry point: wires the
// configuration, LLM client, and three generate-critique-refine loops into
// a Controller and drives it once per repository in the selected dataset.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"genforge/internal/astextract"
	"genforge/internal/config"
	"genforge/internal/dataset"
	"genforge/internal/llm"
	"genforge/internal/logging"
	"genforge/internal/persist"
	"genforge/internal/pipeline"
	"genforge/internal/prompt"
	"genforge/internal/testrunner"
)

var (
	datasetName string
	configPath  string
	verbose     bool
	workspace   string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "genforge",
	Short: "genforge drives a multi-agent PRD-to-source-tree generation pipeline",
	Long: `genforge orchestrates six cooperating agents (architect, architect-judge,
skeleton, skeleton-judge, code, code-judge) through an iterative
generate-critique-refine loop to turn a PRD, UML diagrams, and an
architecture design document into a compilable, test-passing source tree.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: runGenerate,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.Flags().StringVar(&datasetName, "dataset", "CodeProjectEval", "dataset name under ../datasets/<dataset>")
	rootCmd.Flags().StringVar(&configPath, "config", ".genforge/config.yaml", "engine config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	registry, err := prompt.NewDefaultRegistry()
	if err != nil {
		return fmt.Errorf("loading prompt templates: %w", err)
	}

	client, err := llm.NewGenAIClient(cmd.Context(), cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("initializing LLM client: %w", err)
	}
	wrapper := llm.New(client, registry)

	datasetDir := filepath.Join("..", "datasets", datasetName)
	outputsRoot := filepath.Join("..", datasetName+"_outputs")

	repoNames, err := dataset.List(datasetDir)
	if err != nil {
		return fmt.Errorf("listing dataset repos: %w", err)
	}

	testLogPath := filepath.Join(outputsRoot, "test_log.log")

	for _, repoName := range repoNames {
		if err := generateOne(cmd.Context(), cfg, wrapper, datasetDir, outputsRoot, testLogPath, repoName); err != nil {
			logging.PipelineError("repository %s failed: %v", repoName, err)
			fmt.Fprintf(os.Stderr, "genforge: %s: %v\n", repoName, err)
			continue
		}
	}
	return nil
}

func generateOne(ctx context.Context, cfg *config.Config, wrapper *llm.Wrapper, datasetDir, outputsRoot, testLogPath, repoName string) error {
	repo, err := dataset.Load(datasetDir, repoName)
	if err != nil {
		return err
	}

	outputDir := filepath.Join(outputsRoot, repoName)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	runID := uuid.NewString()
	logging.Pipeline("starting run %s for repository %s", runID, repoName)

	architect := pipeline.NewArchitectLoop(wrapper, cfg.Loops.MaxArchIter, cfg.Loops.PassScore, cfg.Loops.MemoryTopK)
	skeleton := pipeline.NewSkeletonLoop(wrapper, outputDir, cfg.Loops.MaxSkeletonIter, cfg.Loops.PassScore, cfg.Loops.MemoryTopK)
	runner := subprocessTestRunner{repo: repo}
	code := pipeline.NewCodeLoop(wrapper, astextract.New(), runner, outputDir, cfg.Loops.MaxCodeIter, cfg.Loops.MemoryTopK)

	controller := pipeline.NewController(architect, skeleton, code, outputDir, cfg.MaxControllerVisits)

	initial := pipeline.State{
		RepoName: repo.Name,
		RepoDir:  outputDir,
		RunID:    runID,
		Dataset:  datasetName,
		PRD:      repo.PRD,
		UMLClass: repo.UMLClass,
		UMLSeq:   repo.UMLSeq,
		ArchDoc:  repo.ArchDoc,
	}

	final, err := controller.Run(ctx, initial)
	summary := fmt.Sprintf("run=%s repository=%s arch_steps=%d skeleton_steps=%d code_steps=%d", runID, repo.Name, final.ArchSteps, final.SkeletonSteps, final.CodeSteps)
	if logErr := persist.AppendTestLog(testLogPath, summary); logErr != nil {
		logging.PipelineError("appending test log: %v", logErr)
	}
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	logging.Pipeline("completed %s: %s", repo.Name, final.CodeFeedback)
	return nil
}

// subprocessTestRunner adapts internal/testrunner to the code loop's
// TestRunner contract, binding in the dataset.Repo fixtures for one
// repository.
type subprocessTestRunner struct {
	repo dataset.Repo
}

func (r subprocessTestRunner) Run(ctx context.Context, outputDir string) (testrunner.Result, error) {
	return testrunner.Run(ctx, r.repo, outputDir)
}
