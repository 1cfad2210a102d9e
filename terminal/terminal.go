// Package terminal implements the interactive REPL: reading commands
// from the user and dispatching them against a bound debugger.Debugger.
package terminal

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"strings"

	"github.com/go-delve/liner"
	"github.com/mattn/go-isatty"

	"github.com/chronos-dbg/chronos/config"
	"github.com/chronos-dbg/chronos/debugger"
	"github.com/chronos-dbg/chronos/loader"
	"github.com/chronos-dbg/chronos/logflags"
)

const (
	configDir   = ".chronos"
	historyFile = ".chronos_history"
)

var errNoFileSet = fmt.Errorf("no file set; use 'file <path>' first")

// Term owns the REPL loop: reading a line, tokenizing it, and
// dispatching to the matching Commands entry.
type Term struct {
	dbg    *debugger.Debugger
	cfg    *config.Config
	prompt string
	line   *liner.State

	file *loader.File
}

// New constructs a Term bound to dbg, ready to have Run called on it.
func New(dbg *debugger.Debugger, cfg *config.Config) *Term {
	return &Term{
		dbg:    dbg,
		cfg:    cfg,
		prompt: "(Chronos)> ",
		line:   liner.NewLiner(),
	}
}

// PreloadFile remembers path before the REPL starts reading commands,
// equivalent to typing 'file <path>' as the first line.
func (t *Term) PreloadFile(path string) error {
	return t.rememberFile(path)
}

// rememberFile validates path as a loadable executable and remembers
// it for a subsequent run command.
func (t *Term) rememberFile(path string) error {
	f, err := loader.Open(path)
	if err != nil {
		return err
	}
	t.file = &f
	fmt.Printf("remembered %s (%s)\n", f.Path, f.Format)
	return nil
}

// runRememberedFile launches the file previously set by rememberFile
// under trace.
func (t *Term) runRememberedFile() error {
	return t.LaunchRememberedFile(nil)
}

// LaunchRememberedFile launches the file previously set by
// rememberFile/PreloadFile under trace, passing it args.
func (t *Term) LaunchRememberedFile(args []string) error {
	if t.file == nil {
		return errNoFileSet
	}
	if err := t.dbg.Run(t.file.Path, args); err != nil {
		return err
	}
	fmt.Println("process launched")
	return nil
}

// AttachTo binds the REPL to an already-running process.
func (t *Term) AttachTo(pid int) error {
	if err := t.dbg.Attach(pid); err != nil {
		return err
	}
	fmt.Printf("attached to process %d\n", pid)
	return nil
}

// Run starts the REPL and blocks until the user quits or input is
// exhausted. It returns the process exit code.
func (t *Term) Run() int {
	defer t.line.Close()

	log := logflags.TerminalLogger()

	fullHistoryFile, err := getConfigFilePath(historyFile)
	if err != nil {
		log.Warnf("unable to locate history file: %v", err)
	} else if f, err := os.Open(fullHistoryFile); err == nil {
		t.line.ReadHistory(f)
		f.Close()
	}

	cmds := DebugCommands()
	cmds.Merge(t.cfg.Aliases)

	if isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Println("Type 'help' for a list of commands.")
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			fmt.Fprintln(os.Stderr, "reading input:", err)
			return 1
		}
		if cmdstr == "" {
			continue
		}

		name, args := parseCommand(cmdstr)
		cmd := cmds.Find(name)
		if err := cmd(t, args); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		}
	}
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}
	l = strings.TrimSpace(l)
	if l != "" {
		t.line.AppendHistory(l)
	}
	return l, nil
}

func (t *Term) handleExit() int {
	fullHistoryFile, err := getConfigFilePath(historyFile)
	if err == nil {
		if err := os.MkdirAll(path.Dir(fullHistoryFile), 0700); err == nil {
			if f, err := os.Create(fullHistoryFile); err == nil {
				t.line.WriteHistory(f)
				f.Close()
			}
		}
	}

	if !t.dbg.IsRunning() {
		return 0
	}
	if err := t.dbg.Detach(true); err != nil {
		fmt.Fprintln(os.Stderr, "detach:", err)
		return 1
	}
	return 0
}

func parseCommand(cmdstr string) (string, string) {
	fields := strings.SplitN(cmdstr, " ", 2)
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], strings.TrimSpace(fields[1])
}

func getConfigFilePath(file string) (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return path.Join(usr.HomeDir, configDir, file), nil
}
