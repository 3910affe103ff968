package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"syncer/src/schemas"
)

type Config struct {
	Service         ServiceConfig        `mapstructure:"service"`
	Sync            SyncConfig           `mapstructure:"sync"`
	Excel           ExcelConfig          `mapstructure:"excel"`
	ExternalClients ExternalClientConfig `mapstructure:"externalClients"`
	Objects         []schemas.ObjectType `mapstructure:"objects"`
}

type ServiceConfig struct {
	LogLevel  string `mapstructure:"logLevel"`
	LogToFile bool   `mapstructure:"logToFile"`
	LogPath   string `mapstructure:"logPath"`
	AWSRegion string `mapstructure:"awsRegion"`
}

type SyncConfig struct {
	Strategy        schemas.ConflictStrategy `mapstructure:"strategy"`
	BatchSize       int                      `mapstructure:"batchSize"`
	IntervalMinutes int                      `mapstructure:"intervalMinutes"`
	LedgerPath      string                   `mapstructure:"ledgerPath"`
}

type ExcelConfig struct {
	FilePath string `mapstructure:"filePath"`
}

type ExternalClientConfig struct {
	Twenty   TwentyConfig   `mapstructure:"twenty"`
	LinkedIn LinkedInConfig `mapstructure:"linkedin"`
}

type TwentyConfig struct {
	BaseURL string `mapstructure:"baseUrl"`
	APIKey  string `mapstructure:"apiKey"`
	// APIKeySecretID names an AWS Secrets Manager secret holding the API
	// key. When set it takes precedence over APIKey.
	APIKeySecretID     string `mapstructure:"apiKeySecretId"`
	RateLimitDelayMS   int    `mapstructure:"rateLimitDelayMs"`
	RequestTimeoutSecs int    `mapstructure:"requestTimeoutSecs"`
}

type LinkedInConfig struct {
	ClientID        string   `mapstructure:"clientId"`
	ClientSecret    string   `mapstructure:"clientSecret"`
	RedirectURL     string   `mapstructure:"redirectUrl"`
	Scope           string   `mapstructure:"scope"`
	AccessToken     string   `mapstructure:"accessToken"`
	TokenPath       string   `mapstructure:"tokenPath"`
	SnapshotDomains []string `mapstructure:"snapshotDomains"`
}

func LoadConfig(path string) (*Config, error) {
	var cfg Config

	// Local overrides live in .env, missing file is fine.
	_ = godotenv.Load()

	viper.AddConfigPath(path)
	viper.SetConfigName("appsettings")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("SYNCER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("service.logLevel", "info")
	viper.SetDefault("sync.strategy", string(schemas.StrategyNewestWins))
	viper.SetDefault("sync.batchSize", 60)
	viper.SetDefault("sync.intervalMinutes", 30)
	viper.SetDefault("sync.ledgerPath", ".sync_ledger.json")
	viper.SetDefault("excel.filePath", "twenty_crm_data.xlsx")
	viper.SetDefault("externalClients.twenty.baseUrl", "http://localhost:3000")
	viper.SetDefault("externalClients.twenty.rateLimitDelayMs", 700)
	viper.SetDefault("externalClients.twenty.requestTimeoutSecs", 30)
	viper.SetDefault("externalClients.linkedin.redirectUrl", "http://127.0.0.1:8787/callback")
	viper.SetDefault("externalClients.linkedin.scope", "r_dma_portability_3rd_party")
	viper.SetDefault("externalClients.linkedin.tokenPath", ".linkedin_token.json")
	viper.SetDefault("externalClients.linkedin.snapshotDomains", []string{"PROFILE", "CONNECTIONS"})
}
