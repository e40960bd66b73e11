package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Mindburn-Labs/appops/pkg/registry"
)

// runOpsCmd prints the operation catalog: code, name, default mode and
// permission.
func runOpsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("ops", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	jsonOutput := cmd.Bool("json", false, "Output the catalog as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ops := registry.Default().Ops()
	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ops); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CODE\tNAME\tDEFAULT\tPERMISSION")
	for _, op := range ops {
		perm := op.Permission
		if perm == "" {
			perm = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", op.Code, op.Name, op.DefaultMode, perm)
	}
	if err := tw.Flush(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
