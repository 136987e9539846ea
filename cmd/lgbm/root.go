package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/lgbmgo/pkg/envconfig"
	"github.com/YuminosukeSato/lgbmgo/pkg/errors"
	"github.com/YuminosukeSato/lgbmgo/pkg/log"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}
	envUsage := "\nEnvironment Variables:\n"
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-18s   %s\n", e.Name, e.Description)
	}
	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI builds the lgbm root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "lgbm",
		Short:         "Train and apply LightGBM gradient boosting models",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: setupLogging,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level")

	envVars := envconfig.AsMap()
	common := []envconfig.EnvVar{envVars["LGBM_BACKEND"], envVars["LGBM_LOG_LEVEL"], envVars["LGBM_LOG_FORMAT"]}
	for _, cmd := range []*cobra.Command{
		newTrainCmd(),
		newPredictCmd(),
		newEvalCmd(),
		newImportanceCmd(),
		newDemoCmd(),
	} {
		envs := common
		if cmd.Name() == "train" || cmd.Name() == "demo" {
			envs = append(append([]envconfig.EnvVar(nil), common...), envVars["LGBM_NUM_THREADS"])
		}
		appendEnvDocs(cmd, envs)
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newVersionCmd(), newEnvCmd())
	return rootCmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	level := envconfig.LogLevel()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = log.LevelDebug
	}
	w := cmd.ErrOrStderr()
	switch envconfig.LogFormat() {
	case "cloud":
		return log.SetupLogger(w, level.String())
	case "json":
		log.SetProvider(log.NewZerologProvider(w, level, log.FormatJSON))
	default:
		log.SetProvider(log.NewZerologProvider(w, level, log.FormatConsole))
	}
	return nil
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the LGBM_* environment configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vars := envconfig.AsMap()
			keys := make([]string, 0, len(vars))
			for k := range vars {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			rows := make([][]string, 0, len(keys))
			for _, k := range keys {
				v := vars[k]
				rows = append(rows, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
			}
			renderTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lgbm version and the selected backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := loadLibrary()
			backend := "unavailable"
			if err == nil {
				backend = lib.Name()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lgbm version %s (backend %s)\n", version, backend)
			return nil
		},
	}
}

// splitAssignment parses a --set value of the form key=value.
func splitAssignment(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", "", errors.Newf("invalid --set %q, expected key=value", s)
	}
	return k, v, nil
}
