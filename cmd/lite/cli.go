package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/lite/internal/envconfig"
	"github.com/born-ml/lite/net"
)

const version = "v0.1.0-dev"

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "lite",
		Short:         "Embedded neural network inference engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: envconfig.LogLevel()})
			slog.SetDefault(slog.New(handler))
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(cmd.OutOrStdout(), "lite version %s\n", version)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.PersistentFlags().Int("threads", 0, "Worker goroutines per layer (0 uses LITE_NUM_THREADS or all CPUs)")
	rootCmd.PersistentFlags().Bool("binary", false, "Param files are in binary form")

	rootCmd.AddCommand(
		newInfoCmd(),
		newRunCmd(),
		newBenchCmd(),
		newParam2BinCmd(),
	)

	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{
		envVars["LITE_NUM_THREADS"],
		envVars["LITE_LIGHT_MODE"],
		envVars["LITE_PACKING"],
		envVars["LITE_BF16"],
		envVars["LITE_INT8"],
		envVars["LITE_WINOGRAD"],
		envVars["LITE_SGEMM"],
		envVars["LITE_DEBUG"],
	}
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() != "param2bin" {
			appendEnvDocs(cmd, envs)
		}
	}
	return rootCmd
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// optionFromFlags starts from net.DefaultOption and applies command flags.
func optionFromFlags(cmd *cobra.Command) (net.Option, error) {
	opt := net.DefaultOption()
	threads, err := cmd.Flags().GetInt("threads")
	if err != nil {
		return opt, err
	}
	if threads > 0 {
		opt.NumThreads = threads
	}
	return opt, nil
}

func loadParam(cmd *cobra.Command, n *net.Net, path string) error {
	binary, err := cmd.Flags().GetBool("binary")
	if err != nil {
		return err
	}
	if binary {
		return n.LoadParamBinFile(path)
	}
	return n.LoadParamFile(path)
}

// parseShape reads "w[,h[,c]]".
func parseShape(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	if len(fields) == 0 || len(fields) > 3 {
		return nil, fmt.Errorf("shape %q: want w[,h[,c]]", s)
	}
	shape := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("shape %q: invalid extent %q", s, f)
		}
		shape[i] = v
	}
	return shape, nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}
