package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chronos-dbg/chronos/config"
	"github.com/chronos-dbg/chronos/debugger"
	"github.com/chronos-dbg/chronos/logflags"
	"github.com/chronos-dbg/chronos/terminal"
)

const version = "0.1.0"

var (
	logEnabled bool
	logDest    string
	preload    string
)

func main() {
	rootCommand := &cobra.Command{
		Use:   "chronos",
		Short: "Chronos is a native-code process debugger.",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runREPL(0, nil))
		},
	}
	rootCommand.PersistentFlags().BoolVar(&logEnabled, "log", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVar(&logDest, "log-dest", "", "Comma-separated list of subsystems to log: platform,proc,breakpoint,debugger,terminal.")
	rootCommand.PersistentFlags().StringVarP(&preload, "file", "f", "", "Preload a target executable before starting the REPL.")

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Print the version number.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Chronos version: " + version)
		},
	}
	rootCommand.AddCommand(versionCommand)

	runCommand := &cobra.Command{
		Use:   "run <path> [args...]",
		Short: "Launch path under trace and start the REPL.",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runREPLWithLaunch(args[0], args[1:]))
		},
	}
	rootCommand.AddCommand(runCommand)

	attachCommand := &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach to a running process and start the REPL.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid pid %q\n", args[0])
				os.Exit(1)
			}
			os.Exit(runREPL(pid, nil))
		},
	}
	rootCommand.AddCommand(attachCommand)

	rootCommand.Execute()
}

func setupLogging() error {
	return logflags.Setup(logEnabled, logDest)
}

func newTerm() *terminal.Term {
	dbg := debugger.New()
	cfg := config.LoadConfig()
	return terminal.New(dbg, cfg)
}

func runREPL(attachPid int, launchArgs []string) int {
	if err := setupLogging(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	term := newTerm()
	if preload != "" {
		if err := term.PreloadFile(preload); err != nil {
			fmt.Fprintln(os.Stderr, "preloading file:", err)
			return 1
		}
	}
	if attachPid > 0 {
		if err := term.AttachTo(attachPid); err != nil {
			fmt.Fprintln(os.Stderr, "attaching:", err)
			return 1
		}
	}
	return term.Run()
}

func runREPLWithLaunch(path string, args []string) int {
	if err := setupLogging(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	term := newTerm()
	if err := term.PreloadFile(path); err != nil {
		fmt.Fprintln(os.Stderr, "preloading file:", err)
		return 1
	}
	if err := term.LaunchRememberedFile(args); err != nil {
		fmt.Fprintln(os.Stderr, "launching:", err)
		return 1
	}
	return term.Run()
}
