package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	libFlags := &LibPathFlags{}
	statusFlags := &StatusFlags{}
	historyFlags := &HistoryFlags{}

	vpnrCommand := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(vpnrCommand, globalFlags, runFlags),
		createClassifyCommand(vpnrCommand),
		createLibPathCommand(vpnrCommand, libFlags),
		createStatusCommand(vpnrCommand, statusFlags),
		createHistoryCommand(vpnrCommand, globalFlags, historyFlags),
		createVersionCommand(vpnrCommand),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "vpnr",
		Short: "VPN engine supervisor",
		Long: `vpnr launches a VPN engine process, classifies its log output into a
status log, and reports how the engine ended.

Examples:
  vpnr run --config=vpnr.toml
  vpnr status --api-url=http://127.0.0.1:8080/api
  vpnr history --limit=20
  vpnr classify engine.log
  vpnr libpath --exe=/data/app/cache/pie_openvpn --native-dir=/data/app/lib`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML or YAML config file")

	return root
}

// createRunCommand creates the run subcommand
func createRunCommand(vpnrCommand command, globalFlags *GlobalFlags, runFlags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine under supervision until it exits",
		Long: `Load the configuration, start the engine and supervise it until it exits
or vpnr receives SIGINT/SIGTERM. Exits non-zero when the engine did not
exit successfully.

Every setting can be overridden with VPNR_* environment variables, e.g.
VPNR_ENGINE_TMP_DIR=/var/tmp/vpn.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return vpnrCommand.Run(cmd.Context(), RunFlags{
				ConfigPath:  globalFlags.ConfigPath,
				StopTimeout: runFlags.StopTimeout,
			})
		},
	}

	cmd.Flags().DurationVar(&runFlags.StopTimeout, "stop-timeout", 10*time.Second, "time to wait for the engine after a stop signal")

	return cmd
}

// createClassifyCommand creates the classify subcommand
func createClassifyCommand(vpnrCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify engine log lines",
		Long: `Read engine output from a file or stdin and print one line per event:
severity, verbosity and message for structured lines, PLAIN for anything
else, DUMP for crash dump markers.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return vpnrCommand.Classify(cmd.InOrStdin(), cmd.OutOrStdout(), args)
		},
	}
}

// createLibPathCommand creates the libpath subcommand
func createLibPathCommand(vpnrCommand command, f *LibPathFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "libpath",
		Short: "Print the library search path the engine would get",
		RunE: func(cmd *cobra.Command, args []string) error {
			return vpnrCommand.LibPath(cmd.OutOrStdout(), *f)
		},
	}

	cmd.Flags().StringVar(&f.Exe, "exe", "", "engine executable path (required)")
	cmd.Flags().StringVar(&f.NativeDir, "native-dir", "", "installed native library directory")
	cmd.Flags().StringVar(&f.Existing, "existing", "", "existing library path (default: from the environment)")
	cmd.Flags().BoolVar(&f.NoEnv, "no-env", false, "ignore the library path from the environment")

	if err := cmd.MarkFlagRequired("exe"); err != nil {
		panic(err)
	}

	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(vpnrCommand command, f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running vpnr",
		Long: `Query the read-only HTTP surface of a running "vpnr run".

Examples:
  vpnr status
  vpnr status --logs=20 --api-url=http://127.0.0.1:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return vpnrCommand.Status(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}

	cmd.Flags().StringVar(&f.APIUrl, "api-url", "http://127.0.0.1:8080/api", "vpnr server URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().IntVar(&f.Logs, "logs", 0, "also print the newest N status log items")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS verification")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "PEM file to trust for an HTTPS server (e.g. its tls_ca.crt)")

	return cmd
}

// createHistoryCommand creates the history subcommand
func createHistoryCommand(vpnrCommand command, globalFlags *GlobalFlags, f *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent engine runs from the history store",
		Long: `Read start/stop events back from the first sqlite or postgres store in
history.dsns (or --dsn). ClickHouse and OpenSearch stores are write-only here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			hf := *f
			hf.ConfigPath = globalFlags.ConfigPath
			return vpnrCommand.History(cmd.Context(), cmd.OutOrStdout(), hf)
		},
	}

	cmd.Flags().StringSliceVar(&f.DSNs, "dsn", nil, "history DSN (default: history.dsns from the config)")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "number of events to show")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print events as JSON")

	return cmd
}

func createVersionCommand(vpnrCommand command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vpnr version",
		Run: func(cmd *cobra.Command, args []string) {
			vpnrCommand.Version(cmd.OutOrStdout())
		},
	}
}
