package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var Version = "dev"

type rootOptions struct {
	apiURL     string
	mirrorPath string
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "cartctl",
		Short:   "Work with a storefront cart from the terminal, offline included",
		Version: Version,
	}

	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("CART_API_URL", "http://localhost:5000/api"), "Cart API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.mirrorPath, "mirror", defaultMirrorPath(), "Local cart mirror file")

	rootCmd.AddCommand(showCmd(opts))
	rootCmd.AddCommand(addCmd(opts))
	rootCmd.AddCommand(updateCmd(opts))
	rootCmd.AddCommand(removeCmd(opts))
	rootCmd.AddCommand(clearCmd(opts))
	rootCmd.AddCommand(sessionCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultMirrorPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cartctl.db"
	}
	return filepath.Join(home, ".cartctl.db")
}
