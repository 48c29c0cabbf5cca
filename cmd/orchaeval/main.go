// Command orchaeval runs an evaluation suite against the agent harness and
// prints the aggregate metrics report.
//
// Tasks are loaded from a YAML file of EvalTask definitions. By default the
// agent runs against the Anthropic provider; --dry-run swaps in the
// scriptable stub so a suite's plumbing can be checked offline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/orcha/internal/agent"
	"github.com/haasonsaas/orcha/internal/eval"
	"github.com/haasonsaas/orcha/internal/llm"
	"github.com/haasonsaas/orcha/internal/registry"
	"github.com/haasonsaas/orcha/internal/tool"
)

func main() {
	root := &cobra.Command{
		Use:           "orchaeval",
		Short:         "Run agent evaluation suites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildRunCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// taskFile is the YAML shape orchaeval reads.
type taskFile struct {
	Tasks []taskSpec `yaml:"tasks"`
}

type taskSpec struct {
	TaskID           string   `yaml:"task_id"`
	Prompt           string   `yaml:"prompt"`
	Category         string   `yaml:"category"`
	ExpectedOutput   string   `yaml:"expected_output"`
	ExpectedPatterns []string `yaml:"expected_patterns"`
	GradingCriteria  []string `yaml:"grading_criteria"`
	TestFile         string   `yaml:"test_file"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	MaxSteps         int      `yaml:"max_steps"`
	EffortLevel      string   `yaml:"effort_level"`
	Difficulty       string   `yaml:"difficulty"`
	Tags             []string `yaml:"tags"`
}

func (s taskSpec) toTask() eval.EvalTask {
	return eval.EvalTask{
		TaskID:           s.TaskID,
		Prompt:           s.Prompt,
		Category:         s.Category,
		ExpectedOutput:   s.ExpectedOutput,
		ExpectedPatterns: s.ExpectedPatterns,
		GradingCriteria:  s.GradingCriteria,
		TestFile:         s.TestFile,
		TimeoutSeconds:   s.TimeoutSeconds,
		MaxSteps:         s.MaxSteps,
		EffortLevel:      agent.EffortLevel(s.EffortLevel),
		Difficulty:       s.Difficulty,
		Tags:             s.Tags,
	}.WithDefaults()
}

func buildRunCmd() *cobra.Command {
	var (
		tasksPath string
		trials    int
		modelName string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every task in a suite and print the metrics report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd.Context(), tasksPath, trials, modelName, dryRun)
		},
	}

	cmd.Flags().StringVarP(&tasksPath, "tasks", "t", "tasks.yaml", "Path to the task suite YAML")
	cmd.Flags().IntVarP(&trials, "trials", "n", 1, "Trials per task")
	cmd.Flags().StringVar(&modelName, "model", "", "Model name passed to the provider")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use the scriptable stub model instead of a live provider")
	return cmd
}

func runSuite(ctx context.Context, tasksPath string, trials int, modelName string, dryRun bool) error {
	data, err := os.ReadFile(tasksPath)
	if err != nil {
		return fmt.Errorf("read task suite: %w", err)
	}
	var file taskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse task suite: %w", err)
	}
	if len(file.Tasks) == 0 {
		return fmt.Errorf("task suite %s defines no tasks", tasksPath)
	}

	runner := eval.NewTrialRunner(&eval.CodeGrader{})
	tasks := make(map[string]eval.EvalTask, len(file.Tasks))

	var outcomes []eval.TrialOutcome
	start := time.Now()
	for _, spec := range file.Tasks {
		task := spec.toTask()
		tasks[task.TaskID] = task

		results, err := runner.RunMultipleTrials(ctx, task, agentFactory(modelName, dryRun), trials)
		if err != nil {
			return fmt.Errorf("task %s: %w", task.TaskID, err)
		}
		outcomes = append(outcomes, results...)
		fmt.Fprintf(os.Stderr, "task %s: %d/%d passed\n", task.TaskID, countPassed(results), len(results))
	}

	report := eval.AggregateMetrics(outcomes, eval.LookupFromTasks(tasks))
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	fmt.Fprintf(os.Stderr, "suite completed in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func countPassed(outcomes []eval.TrialOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Passed {
			n++
		}
	}
	return n
}

// agentFactory builds one fresh agent per trial so trials never share
// memory or step state.
func agentFactory(modelName string, dryRun bool) eval.AgentFactory {
	return func(ctx context.Context) (eval.Runnable, error) {
		model, err := buildModel(modelName, dryRun)
		if err != nil {
			return nil, err
		}
		reg := registry.New()
		reg.Add(tool.Terminate{}, "local")
		a := agent.New("eval", agent.NewToolCallingAgent(model, reg))
		return eval.AgentRunnable{Agent: a, Model: model}, nil
	}
}

func buildModel(modelName string, dryRun bool) (llm.Model, error) {
	if dryRun {
		stub := llm.NewStub()
		stub.EnqueueToolCall("t1", "terminate", []byte(`{"status":"success"}`))
		return stub, nil
	}
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required (or pass --dry-run)")
	}
	return llm.NewAnthropic(llm.AnthropicConfig{APIKey: apiKey, DefaultModel: modelName})
}
