// Command leafwise is a terminal client for the Leafwise diagnosis
// service: sign in once, then analyze leaf photos from the shell.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leafwise/leafwise-go"
	"github.com/leafwise/leafwise-go/pkg/firebase"
	"github.com/leafwise/leafwise-go/pkg/logger"
	"github.com/leafwise/leafwise-go/pkg/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "leafwise",
		Short:         "Diagnose plant diseases from leaf photos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("api-url", "", "service base URL (defaults to the local backend)")
	root.PersistentFlags().String("credentials", "", "path to the encrypted credential file")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")

	viper.BindPFlag("api_url", root.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("credentials", root.PersistentFlags().Lookup("credentials"))
	viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		newLoginCommand(),
		newRegisterCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newAnalyzeCommand(),
	)
	return root
}

func initConfig() {
	// A local .env is a convenience, not a requirement.
	godotenv.Load()

	viper.SetEnvPrefix("LEAFWISE")
	viper.AutomaticEnv()

	viper.SetDefault("credentials", defaultCredentialPath())
	viper.SetDefault("credentials_passphrase", "leafwise")
}

func defaultCredentialPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "leafwise-credentials.enc"
	}
	return filepath.Join(home, ".leafwise", "credentials.enc")
}

// newClient assembles the SDK client from flags and environment. Every
// subcommand goes through here so they all see the same session.
func newClient() (*leafwise.Client, *zap.Logger, error) {
	initConfig()

	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	apiKey := viper.GetString("firebase_api_key")
	if apiKey == "" {
		return nil, nil, fmt.Errorf("LEAFWISE_FIREBASE_API_KEY is not set")
	}

	credentials := store.NewFileStore(
		viper.GetString("credentials"),
		viper.GetString("credentials_passphrase"),
	)

	client, err := leafwise.New(leafwise.Config{
		Platform: leafwise.PlatformNative,
		EnvURL:   viper.GetString("api_url"),
		Store:    credentials,
		Provider: firebase.NewProvider(apiKey, nil),
		Logger:   log,
	})
	if err != nil {
		return nil, nil, err
	}

	log.Debug("client assembled", zap.String("base_url", client.BaseURL))
	return client, log, nil
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return logger.NewDevelopment()
	}
	return zap.NewNop(), nil
}
