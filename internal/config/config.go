package config

import "github.com/ilyakaznacheev/cleanenv"

type Config struct {
	Port           string `env:"PORT" env-default:"8082"`
	DatabaseURL    string `env:"DATABASE_URL" env-required:"true"`
	RedisURL       string `env:"REDIS_URL" env-default:"localhost:6379"`
	KafkaBrokers   string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	NatsURL        string `env:"NATS_URL" env-default:"nats://localhost:4222"`
	JaegerEndpoint string `env:"JAEGER_ENDPOINT" env-default:"jaeger:4318"`
	GatewayTimeout int    `env:"GATEWAY_TIMEOUT_SECONDS" env-default:"15"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
