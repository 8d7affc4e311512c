package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func loginCmd() *cobra.Command {
	var email, password string
	var save bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a bearer token",
		Long:  "Prints the token. With --save it is stored as CISLINE_TOKEN in the workspace .env, which later commands pick up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("CISLINE_PASSWORD")
			}
			c := apiClient()
			c.BearerToken = ""
			tok, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if save {
				path := filepath.Join(viper.GetString("workspace"), ".env")
				if err := setEnvValue(path, "CISLINE_TOKEN", tok.Token); err != nil {
					return err
				}
			}
			return printJSONOr(tok, func() {
				fmt.Printf("logged in as %s (profile %d), token expires %s\n", email, tok.Profile.ID, tok.ExpiresAt)
				if save {
					fmt.Println("saved CISLINE_TOKEN to the workspace .env")
				} else {
					fmt.Println(tok.Token)
				}
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password (or CISLINE_PASSWORD)")
	cmd.Flags().BoolVar(&save, "save", false, "store the token in the workspace .env")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// setEnvValue sets key in the dotenv file at path, keeping other entries.
func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		env = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	env[key] = value
	return godotenv.Write(env, path)
}
