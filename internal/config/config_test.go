package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "ecommerce", cfg.Database.Database)
			assert.Equal(t, "export_category_queue", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "export_category_queue.dlq", cfg.RabbitMQ.Queue.DeadLetterQueue)
			assert.Equal(t, 4, cfg.RabbitMQ.Consumer.PrefetchCount)
			assert.False(t, cfg.RabbitMQ.Consumer.AutoAck)
			assert.Equal(t, 12*time.Hour, cfg.Redis.StatusTTL)
			assert.Equal(t, 2*time.Minute, cfg.Worker.JobTimeout)
			assert.Equal(t, "Categories", cfg.Exports.SheetName)
			assert.Equal(t, "report-export-worker", cfg.App.Name)

			assert.NoError(t, cfg.ValidateAPIConfig())
			assert.NoError(t, cfg.ValidateWorkerConfig())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/minimal_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultQueueName, cfg.RabbitMQ.Queue.Name)
	assert.Equal(t, DefaultExportDir, cfg.Exports.Dir)
	assert.Equal(t, "xlsx", cfg.Exports.Format)
	assert.Equal(t, DefaultStatusTTL, cfg.Redis.StatusTTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.NoError(t, cfg.ValidateAPIConfig())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvRabbitMQPassword, "rabbit-secret")
	t.Setenv(EnvDatabasePassword, "db-secret")
	t.Setenv(EnvRedisPassword, "redis-secret")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "rabbit-secret", cfg.RabbitMQ.Password)
	assert.Equal(t, "db-secret", cfg.Database.Password)
	assert.Equal(t, "redis-secret", cfg.Redis.Password)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "ecommerce",
		},
		RabbitMQ: RabbitMQConfig{
			Host:  "localhost",
			Port:  5672,
			Queue: QueueConfig{Name: "export_category_queue"},
		},
		Redis: RedisConfig{StatusTTL: time.Hour},
		Worker: WorkerConfig{
			Concurrency:     2,
			JobTimeout:      time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Exports: ExportsConfig{Dir: "wwwroot/exports", Format: "xlsx"},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "invalid server port", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "missing rabbitmq host", mutate: func(c *Config) { c.RabbitMQ.Host = "" }, errString: "rabbitmq host is required"},
		{name: "invalid rabbitmq port", mutate: func(c *Config) { c.RabbitMQ.Port = 70000 }, errString: "invalid rabbitmq port"},
		{name: "missing queue name", mutate: func(c *Config) { c.RabbitMQ.Queue.Name = "" }, errString: "rabbitmq queue name is required"},
		{
			name:      "dead letter queue equals queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.DeadLetterQueue = c.RabbitMQ.Queue.Name },
			errString: "dead_letter_queue must differ",
		},
		{name: "redis enabled without addr", mutate: func(c *Config) { c.Redis.Enabled = true }, errString: "redis addr is required"},
		{name: "unsupported format", mutate: func(c *Config) { c.Exports.Format = "pdf" }, errString: "unsupported exports format"},
		{name: "database is not needed", mutate: func(c *Config) { c.Database = DatabaseConfig{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "invalid database port", mutate: func(c *Config) { c.Database.Port = -1 }, errString: "invalid database port"},
		{name: "missing database name", mutate: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{name: "negative prefetch", mutate: func(c *Config) { c.RabbitMQ.Consumer.PrefetchCount = -1 }, errString: "prefetch_count"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "worker concurrency"},
		{name: "zero job timeout", mutate: func(c *Config) { c.Worker.JobTimeout = 0 }, errString: "worker job_timeout"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Worker.ShutdownTimeout = 0 }, errString: "worker shutdown_timeout"},
		{name: "server port is not needed", mutate: func(c *Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
