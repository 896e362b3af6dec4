package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/llm-ci-runner/internal/llm"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	var opts options
	code := exitOK

	rootCmd := &cobra.Command{
		Use:   "llm-ci-runner",
		Short: "Run one LLM task from CI with optional JSON schema enforcement",
		Long: `llm-ci-runner turns a chat-style task file (or a rendered template) into a
single LLM call, retries transient backend failures, optionally enforces a
JSON schema on the reply and writes the result for the next pipeline step.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code = run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return nil
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&opts.inputFile, "input-file", "", "Task file with messages and optional context (JSON or YAML)")
	f.StringVar(&opts.templateFile, "template-file", "", "Prompt template (Go text/template)")
	f.StringVar(&opts.templateVars, "template-vars", "", "Template variables file (YAML or JSON)")
	f.StringVar(&opts.schemaFile, "schema-file", "", "JSON schema the reply must satisfy (JSON or YAML)")
	f.StringVar(&opts.outputFile, "output-file", "", "Result file (.json, .yaml/.yml, or .txt/.md for the bare response); stdout if empty")
	f.StringVar(&opts.configPath, "config", "", "Config file path")
	f.StringVar(&opts.provider, "provider", "", "LLM provider (overrides config)")
	f.StringVar(&opts.model, "model", "", "Model or Azure deployment name (overrides config)")
	f.IntVar(&opts.maxAttempts, "max-attempts", 0, "Total attempts including the first (overrides config)")
	f.DurationVar(&opts.attemptTimeout, "attempt-timeout", 0, "Timeout for each backend call (default: llm.timeout)")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	f.StringVar(&opts.auditLog, "audit-log", "", "Append a JSONL audit trail to this file (or stdout/stderr)")
	f.BoolVar(&opts.summary, "summary", false, "Print a run summary to stderr")
	rootCmd.MarkFlagsMutuallyExclusive("input-file", "template-file")
	rootCmd.MarkFlagsOneRequired("input-file", "template-file")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Available LLM providers:")
			fmt.Fprintln(w)
			names := make([]string, 0, len(llm.KnownProviders))
			for name := range llm.KnownProviders {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				url := llm.KnownProviders[name]
				if url == "" {
					url = "(endpoint required via base_url)"
				}
				fmt.Fprintf(w, "  %-14s %s\n", name, url)
			}
			fmt.Fprintln(w, "  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Configure in a config file or via environment:")
			fmt.Fprintln(w, "  LLM_RUNNER_LLM_PROVIDER=groq")
			fmt.Fprintln(w, "  LLM_RUNNER_LLM_API_KEY=gsk_...")
			fmt.Fprintln(w, "  LLM_RUNNER_LLM_MODEL=llama-3.3-70b-versatile")
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "llm-ci-runner %s\n", version)
		},
	}

	rootCmd.AddCommand(providersCmd, versionCmd)
	if args == nil {
		args = []string{} // nil makes cobra fall back to os.Args
	}
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return exitFailure
	}
	return code
}
