package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	SessionSecret       string
	DatabaseURL         string
	RedisURL            string
	AMQPURL             string // RabbitMQ for outbid/reactivation/overdue notifications; empty disables publishing
	FeeWebhookSecret    string // HMAC secret of the payment provider's fee webhook
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	SuccessFeeRate      float64 // fraction of the sale price charged as success fee
	ReactivationBatch   int     // max listings handled per scheduler tick
}

// DefaultSuccessFeeRate applies when SUCCESS_FEE_RATE is unset.
const DefaultSuccessFeeRate = 0.05

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = viper.GetString("DATABASE_URL")
	}

	feeRate := viper.GetFloat64("SUCCESS_FEE_RATE")
	if feeRate <= 0 || feeRate >= 1 {
		feeRate = DefaultSuccessFeeRate
	}
	batch := viper.GetInt("REACTIVATION_BATCH")
	if batch <= 0 {
		batch = 100
	}

	return &Config{
		Env:                 env,
		Port:                port,
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		AMQPURL:             viper.GetString("AMQP_URL"),
		FeeWebhookSecret:    viper.GetString("FEE_WEBHOOK_SECRET"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		SuccessFeeRate:      feeRate,
		ReactivationBatch:   batch,
	}, nil
}
