package main

import (
	"os"

	"github.com/spf13/cobra"

	"nexus-sim/internal/dashboard"
)

var (
	dashboardOut string
	dashboardUID string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		uid := dashboardUID
		if uid == "" {
			uid = os.Getenv("GREPTIMEDB_DATASOURCE_UID")
		}
		return dashboard.Render(dashboardOut, dashboard.Options{DatasourceUID: uid})
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardUID, "datasource-uid", "", "Grafana datasource UID (default $GREPTIMEDB_DATASOURCE_UID)")
}
