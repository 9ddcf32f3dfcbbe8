/*
config.go - Environment-backed runtime settings

PURPOSE:
  Loads service configuration from the environment, with a .env file
  honored when present. Settings are loaded once at startup and passed
  down explicitly; nothing reads the environment after Load returns.
*/
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Settings is the full runtime configuration.
type Settings struct {
	DBPath        string
	AutoIngest    bool
	QBFile        string
	RootFiFile    string
	OpenAIKey     string
	ModelName     string
	ModelVariants []string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads settings from the environment. A missing .env file is not
// an error.
func Load() Settings {
	_ = godotenv.Load()

	variants := []string{}
	for _, v := range strings.Split(envOr("MODEL_VARIANTS", "gpt-4o-mini,gpt-4o"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			variants = append(variants, v)
		}
	}

	return Settings{
		DBPath:        envOr("DB_PATH", "finance.db"),
		AutoIngest:    os.Getenv("AUTO_INGEST") == "1",
		QBFile:        envOr("QB_FILE", "testdata/quickbooks.json"),
		RootFiFile:    envOr("ROOTFI_FILE", "testdata/rootfi.json"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		ModelName:     envOr("MODEL_NAME", "gpt-4o-mini"),
		ModelVariants: variants,
	}
}
