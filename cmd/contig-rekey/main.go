// Package main is the entrypoint for contig-rekey. It rewrites the contig of
// submitted variant records to the GenBank accession of their assembly and
// rekeys them, one assembly and set of studies per run.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/contig-rekey/contig-rekey/internal/config"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err unless the run has already logged it.
func reportError(w io.Writer, err error) {
	var logged *loggedError
	if errors.As(err, &logged) {
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

// newRootCmd builds the command tree. Command output goes to stdout and
// logs to stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "contig-rekey",
		Short: "Rewrite submitted variant contigs to GenBank accessions",
		Long: `contig-rekey replaces the contig of every submitted variant of an assembly
with its GenBank accession, using the assembly report's synonyms. Because a
record's ID is the hash of its fields, each rewrite inserts a rekeyed copy
and deletes the original.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to the YAML config file")

	root.AddCommand(
		newRunCmd(&configPath),
		newHistoryCmd(&configPath),
	)
	return root
}
