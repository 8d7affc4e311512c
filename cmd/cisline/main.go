package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "cisline",
	Short: "cisline compliance tracker",
	Long: `cisline tracks CIS Controls work across organizations.
- Organization: a tenant with its members (profiles), tasks and directory settings.
- Profile: a person with a user account; belongs to at most one organization.
- Task: a unit of compliance work linked to profiles, artifacts and CIS safeguards.
- Artifact: an evidence file, optionally stored in the configured blob store.
- Event log: the audit trail every mutation writes; view it with 'cisline log'.

'cisline serve' runs the API for a workspace; every other command is a client
of a running server (--server).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env in the workspace seeds CISLINE_* variables; the real
		// environment wins.
		envFile := filepath.Join(viper.GetString("workspace"), ".env")
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CISLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.Bool("json", false, "output JSON")
	pf.String("server", "http://127.0.0.1:8080", "cisline API base URL")
	pf.String("actor-id", "", "actor identifier sent as X-Actor-Id")
	pf.String("token", "", "bearer token (overrides --actor-id)")
	for _, name := range []string{"workspace", "json", "server", "actor-id", "token"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(artifactCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(safeguardCmd())
	rootCmd.AddCommand(loginCmd())
}
