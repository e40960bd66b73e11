// Command appopsd serves the App Ops engine over HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServeCmd

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return startServer(context.Background(), nil, stdout, stderr)
	}

	switch args[1] {
	case "serve", "server":
		return startServer(context.Background(), args[2:], stdout, stderr)
	case "ops":
		return runOpsCmd(args[2:], stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return startServer(context.Background(), args[1:], stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGreen = "\033[32m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sappopsd%s\n", ColorBold+ColorBlue, ColorReset)
	_, _ = fmt.Fprintf(w, "%sPer-app operation modes, access history and watchers.%s\n", ColorGray, ColorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	_, _ = fmt.Fprintln(w, "  appopsd <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "COMMANDS")
	printCommand(w, "serve", "Run the HTTP server (default)")
	printCommand(w, "ops", "Print the operation catalog (--json)")
	printCommand(w, "token", "Mint a caller token (-uid, -package, -grant, -ttl)")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-8s%s %s\n", ColorGreen, name, ColorReset, desc)
}
