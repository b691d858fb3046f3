package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldscan/fieldscan/cmd"
	"github.com/fieldscan/fieldscan/internal/app"
	"github.com/fieldscan/fieldscan/internal/buildinfo"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := &app.Loader{Build: buildinfo.NewContext(version, buildDate, "")}
	rootCmd := cmd.RootCommand(loader)

	err := rootCmd.ExecuteContext(ctx)
	loader.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
