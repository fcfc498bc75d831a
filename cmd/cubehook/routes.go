package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/cubehook/internal/app"
	"github.com/dokzlo13/cubehook/internal/scripts"
)

func init() {
	rootCmd.AddCommand(routesCmd)
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List webhook routes",
	Long:  "List every POST route with its command kind and required fields, including sequences defined by the configured script.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		registry := scripts.NewRegistry()
		if err := scripts.RegisterBuiltins(registry, cfg.Sequences); err != nil {
			return err
		}
		luaService := app.NewLuaService(cfg, configPath, registry)
		defer luaService.Close()
		if err := luaService.LoadScript(); err != nil {
			return err
		}

		return printRoutes(cmd.OutOrStdout(), registry)
	},
}

func printRoutes(out io.Writer, registry *scripts.Registry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATH\tKIND\tREQUIRED")
	for _, s := range registry.Scripts() {
		if s.Path() == "" {
			continue
		}
		required := strings.Join(s.Schema().Required, ",")
		if required == "" {
			required = "-"
		}
		fmt.Fprintf(w, "POST\t%s\t%s\t%s\n", s.Path(), s.Kind(), required)
	}
	return w.Flush()
}
