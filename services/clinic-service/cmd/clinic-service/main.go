package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	service := config.String("SERVICE_NAME", "clinic-service")
	root := &cobra.Command{
		Use:           "clinic-service",
		Short:         "Clinic front office: agenda, patients, billing and reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(service))
	root.AddCommand(migrateCmd(service))
	root.AddCommand(resolveCmd())
	root.AddCommand(createStaffCmd(service))
	return root
}

func serveCmd(service string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health server and the background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(service)
			if err != nil {
				return err
			}
			ctx, stop := runtime.SignalContext()
			defer stop()
			return serve(ctx, cfg, runtime.NewLogger(service))
		},
	}
}
