// Command taskforge runs one natural-language task through the agent
// pipeline: plan, generate code, test it, and self-correct under a bounded
// fix budget.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"taskforge/pkg/config"
	"taskforge/pkg/metrics"
	"taskforge/pkg/orch"
)

var version = "dev"

func main() {
	var (
		baseDir     = flag.String("dir", ".taskforge", "Base directory for storage, snapshots, and tools")
		quiet       = flag.Bool("quiet", false, "Suppress streamed model output")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("taskforge %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(*baseDir, *quiet, flag.Args()))
}

// run contains the main logic and returns an exit code, so defers execute
// before os.Exit.
func run(baseDir string, quiet bool, args []string) int {
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		var err error
		task, err = promptForTask()
		if err != nil {
			fmt.Fprintf(os.Stderr, "No task given: %v\n", err)
			return 1
		}
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if err := config.EnsureDirs(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prepare directories: %v\n", err)
		return 1
	}

	opts := []orch.Option{
		orch.WithRecorder(metrics.NewRecorder(prometheus.DefaultRegisterer)),
	}
	if !quiet {
		opts = append(opts, orch.WithStreamCallback(func(agentName, chunk string) {
			fmt.Fprintf(os.Stderr, "[%s] %s", agentName, chunk)
		}))
	}

	o, err := orch.New(cfg, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start orchestrator: %v\n", err)
		return 1
	}
	defer o.Close()

	result, err := o.Run(context.Background(), task)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run aborted: %v\n", err)
		return 1
	}

	fmt.Println(result.Summary)
	for _, review := range result.Reviews {
		marker := "✓"
		if len(review.Issues) > 0 {
			marker = "✗"
		}
		fmt.Printf("  %s step %s: %s\n", marker, review.StepID, review.Decision)
	}
	return 0
}

// promptForTask asks for a task description when stdin is a terminal.
// Piped input is read as-is.
func promptForTask() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Task: ")
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err != nil {
			return "", err
		}
		return "", fmt.Errorf("empty task description")
	}
	return line, nil
}
