// Package main implements the prospect CLI commands.
// This file contains the init command, which writes a starter config.
package main

import (
	"fmt"
	"os"

	"prospect/internal/config"

	"github.com/spf13/cobra"
)

// initCmd writes a default config file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Creates a default config.yaml under .prospect/.

The defaults work without any API keys: searches fall back to
DuckDuckGo and reports render from a template. Set GEMINI_API_KEY
(and optionally TAVILY_API_KEY) in the generated file or in the
environment to enable LLM-backed research.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s, leaving it alone.\n", configPath)
		return nil
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("prospect initialized"))
	fmt.Printf("Wrote %s\n", configPath)
	fmt.Println(subtleStyle.Render("Next: export GEMINI_API_KEY, then run: prospect research \"<company>\""))
	return nil
}
