package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/srg/witctl/internal/groutine"
	"github.com/srg/witctl/internal/shell"
	"golang.org/x/term"
)

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive sensor command prompt",
	Long: `Run sensor commands one per line, from the terminal or a script.

Outputs are printed as they arrive. Type 'help' for the command list and
'quit' to leave. With --script the lines are read from a file and the
shell keeps running until Ctrl+C so asynchronous outputs are not lost.`,
	RunE: runShell,
}

var (
	shellScript string
	shellExit   bool
)

func init() {
	shellCmd.Flags().StringVar(&shellScript, "script", "", "Read commands from a file instead of stdin")
	shellCmd.Flags().BoolVar(&shellExit, "exit", false, "Exit when the script ends")
}

func runShell(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	var in io.Reader = os.Stdin
	interactive := shellScript == "" && term.IsTerminal(int(os.Stdin.Fd()))
	if shellScript != "" {
		f, err := os.Open(shellScript)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	sess, err := newSession(cfg, newStdoutPrinter(cfg), logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sh := shell.New(sess.sensor, sess.loop, os.Stdout, aboutText(), logger)
	if interactive {
		fmt.Fprintln(os.Stdout, aboutText())
		fmt.Fprintln(os.Stdout, "Type 'help' for commands.")
	}

	groutine.Go(ctx, "shell-input", func(ctx context.Context) {
		if err := sh.Run(ctx, in); err != nil && ctx.Err() == nil {
			logger.WithError(err).Warn("Shell input failed")
		}
		// a script keeps the session open unless --exit was given
		if shellScript == "" || shellExit {
			cancel()
		}
	})

	return sess.run(ctx, nil, nil)
}
