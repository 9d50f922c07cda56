package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"codeberg.org/sigterm-de/goscribe/internal/document"
	"codeberg.org/sigterm-de/goscribe/internal/scripts"
	"codeberg.org/sigterm-de/goscribe/internal/textbuf"
	"github.com/spf13/cobra"
)

func newRootCommand(appVersion string, in io.Reader, out, errOut io.Writer) *cobra.Command {
	var (
		opts Options
		a    *App
	)
	root := &cobra.Command{
		Use:           appName,
		Short:         "Run, debug and transform text documents from the terminal",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = New(appVersion, opts, in, out, errOut)
			return err
		},
	}
	root.SetVersionTemplate(appName + " {{.Version}}\n")
	root.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "configuration file (default $XDG_CONFIG_HOME/goscribe/config.toml)")
	root.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "log file (default $XDG_STATE_HOME/goscribe/goscribe.log)")
	root.PersistentFlags().BoolVar(&opts.Debug, "log-debug", false, "write debug entries to the log")

	current := func() *App { return a }
	root.AddCommand(
		newRunCommand(current),
		newDetectCommand(current),
		newToolCommand(current),
		newScriptsCommand(current),
		newTransformCommand(current),
	)
	return root
}

func newRunCommand(current func() *App) *cobra.Command {
	var (
		debug    bool
		stepInto bool
		breaks   []int
	)
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a document as a script",
		Long: `Execute a document as a script.

When paused at a breakpoint, enter n (or an empty line) to run to the next
breakpoint, c to run to completion and q to stop the script.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			doc, err := a.Docs.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer doc.Close()
			for _, n := range breaks {
				if n < 1 || n > doc.Buffer().LineCount() {
					return fmt.Errorf("breakpoint line %d out of range 1..%d", n, doc.Buffer().LineCount())
				}
				doc.SetBreakpoint(n, true)
			}
			doc.SetStepInto(stepInto)
			if err := doc.Run(debug || len(breaks) > 0); err != nil {
				return err
			}
			return exitCode(a.newSession(doc).wait(cmd.Context()))
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "run in debug mode using the saved breakpoints")
	cmd.Flags().IntSliceVarP(&breaks, "break", "b", nil, "set a breakpoint on `LINE` (implies --debug)")
	cmd.Flags().BoolVar(&stepInto, "step-into", false, "also break inside functions called from the top level")
	return cmd
}

func newDetectCommand(current func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "detect FILE",
		Short: "Report the encoding, line endings, indentation and language of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			doc, err := a.Docs.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer doc.Close()

			enc := doc.Encoding().String()
			if doc.BOM() {
				enc += " (BOM)"
			}
			indent := "tabs"
			if !doc.Buffer().UseTabs() {
				indent = fmt.Sprintf("%d spaces", doc.Buffer().TabWidth())
			}
			language := doc.Language().Name
			if doc.Language().Runnable {
				language += " (runnable)"
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "file:\t%s\n", doc.Path())
			fmt.Fprintf(w, "encoding:\t%s\n", enc)
			fmt.Fprintf(w, "eol:\t%s\n", doc.EOL())
			fmt.Fprintf(w, "indent:\t%s\n", indent)
			fmt.Fprintf(w, "language:\t%s\n", language)
			fmt.Fprintf(w, "lines:\t%d\n", doc.Buffer().LineCount())
			if bps := doc.Buffer().LinesWith(textbuf.Breakpoint); len(bps) > 0 {
				fmt.Fprintf(w, "breakpoints:\t%s\n", joinInts(bps))
			}
			if err := doc.Warning(); err != nil {
				fmt.Fprintf(w, "warning:\t%v\n", err)
			}
			return w.Flush()
		},
	}
}

func newToolCommand(current func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tool NAME FILE",
		Short: "Run a configured tool on a file and attribute its errors to lines",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			doc, err := a.Docs.OpenFile(args[1])
			if err != nil {
				return err
			}
			defer doc.Close()
			if err := doc.RunTool(args[0]); err != nil {
				if tools := doc.Tools(); len(tools) > 0 {
					return fmt.Errorf("%w (tools for this file: %s)", err, strings.Join(tools, ", "))
				}
				return err
			}
			return exitCode(a.newSession(doc).wait(cmd.Context()))
		},
	}
}

func newScriptsCommand(current func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "scripts [QUERY]",
		Short: "List the transform scripts, optionally filtered by a fuzzy query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, s := range current().Library.Search(query) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Origin, s.Description)
			}
			return w.Flush()
		},
	}
}

func newTransformCommand(current func() *App) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "transform SCRIPT FILE",
		Short: "Apply a transform script to a file",
		Long: `Apply a transform script to a file and print the result.

SCRIPT is the name of a library script (see "goscribe scripts"). With
--write the file is saved in its original encoding instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			s, ok := a.Library.Find(args[0])
			if !ok {
				return fmt.Errorf("no script named %q", args[0])
			}
			doc, err := a.Docs.OpenFile(args[1])
			if err != nil {
				return err
			}
			defer doc.Close()
			if err := doc.Transform(s); err != nil {
				return err
			}
			sess := a.newSession(doc)
			if code := sess.wait(cmd.Context()); code != 0 {
				return exitCode(code)
			}
			return writeResult(cmd.OutOrStdout(), doc, s, write)
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "save the result to FILE instead of printing it")
	return cmd
}

func writeResult(out io.Writer, doc *document.Controller, s scripts.Script, write bool) error {
	if !write {
		_, err := io.WriteString(out, doc.Buffer().Text("\n")+"\n")
		return err
	}
	if !doc.Modified() {
		return nil
	}
	if err := doc.Save(); err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	return nil
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
