package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/report-export/internal/artifact"
	"github.com/cuongbtq/report-export/internal/config"
	"github.com/cuongbtq/report-export/internal/domain"
	"github.com/cuongbtq/report-export/internal/publisher"
	"github.com/cuongbtq/report-export/internal/render"
	"github.com/cuongbtq/report-export/internal/report"
	"github.com/cuongbtq/report-export/internal/report/category"
	"github.com/cuongbtq/report-export/internal/worker/storage"
	"github.com/cuongbtq/report-export/shared/logger"
	"github.com/cuongbtq/report-export/shared/postgresql"
	"github.com/cuongbtq/report-export/shared/rabbitmq"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// publishAction enqueues one export message and prints its job id
func publishAction(ctx context.Context, cmd *cli.Command) error {
	cfg, appLogger, err := setup(cmd.String("config"))
	if err != nil {
		return err
	}
	defer appLogger.Close()

	msg, err := messageFromFlags(cmd)
	if err != nil {
		return err
	}

	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:              cfg.RabbitMQ.Host,
		Port:              cfg.RabbitMQ.Port,
		User:              cfg.RabbitMQ.User,
		Password:          cfg.RabbitMQ.Password,
		VHost:             cfg.RabbitMQ.VHost,
		QueueName:         cfg.RabbitMQ.Queue.Name,
		QueueDurable:      cfg.RabbitMQ.Queue.Durable,
		QueueAutoDelete:   cfg.RabbitMQ.Queue.AutoDelete,
		QueueExclusive:    cfg.RabbitMQ.Queue.Exclusive,
		DeadLetterQueue:   cfg.RabbitMQ.Queue.DeadLetterQueue,
		RetryAttempts:     cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:     cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:         cfg.RabbitMQ.Connection.Heartbeat,
		ConnectionTimeout: cfg.RabbitMQ.Connection.ConnectionTimeout,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer client.Close()

	pub := publisher.New(client, cfg.RabbitMQ.Queue.Name, appLogger.Logger)
	if err := pub.Publish(ctx, msg); err != nil {
		return err
	}

	fmt.Println(msg.JobID)
	return nil
}

// renderAction runs the category pipeline in-process and writes the artifact
func renderAction(ctx context.Context, cmd *cli.Command) error {
	cfg, appLogger, err := setup(cmd.String("config"))
	if err != nil {
		return err
	}
	defer appLogger.Close()

	req, err := requestFromFlags(cmd)
	if err != nil {
		return err
	}

	format := cmd.String("format")
	if format == "" {
		format = cfg.Exports.Format
	}
	renderer, err := render.New(format, cfg.Exports.SheetName)
	if err != nil {
		return err
	}

	outDir := cmd.String("out")
	if outDir == "" {
		outDir = cfg.Exports.Dir
	}

	db, err := postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	}, appLogger.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	family := category.NewFamily(storage.NewCategoryStore(db.GetDB(), appLogger.Logger))
	table, err := family.Build(ctx, req)
	if err != nil {
		return err
	}

	name := artifact.Name(family.Kind(), renderer.Extension(), time.Now())
	path, err := renderer.WriteFile(outDir, name, table.Columns, table.Rows)
	if err != nil {
		return err
	}

	appLogger.Info("Export written",
		slog.String("path", path),
		slog.Int("rows", table.Len()),
	)
	fmt.Println(path)
	return nil
}

func setup(configPath string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, appLogger, nil
}

func messageFromFlags(cmd *cli.Command) (*domain.ExportMessage, error) {
	filters, err := parseFilters(cmd.StringSlice("filter"))
	if err != nil {
		return nil, err
	}

	sort, err := parseSort(cmd.String("sort"))
	if err != nil {
		return nil, err
	}

	msg := &domain.ExportMessage{
		JobID:       uuid.NewString(),
		ExportType:  cmd.String("type"),
		RequestedBy: cmd.String("requested-by"),
		Filters:     filters,
		Columns:     cmd.StringSlice("column"),
		Sort:        sort,
		Format:      cmd.String("format"),
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func requestFromFlags(cmd *cli.Command) (report.Request, error) {
	filters, err := parseFilters(cmd.StringSlice("filter"))
	if err != nil {
		return report.Request{}, err
	}

	sort, err := parseSort(cmd.String("sort"))
	if err != nil {
		return report.Request{}, err
	}

	req := report.Request{
		Filters: filters,
		Columns: cmd.StringSlice("column"),
	}
	if sort != nil {
		req.SortKey = sort.Key
		req.SortDirection = sort.Direction
	}
	return req, nil
}

// parseFilters turns key=value pairs into a filter map. Values may contain '='.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", pair)
		}
		filters[key] = value
	}
	return filters, nil
}

// parseSort parses key[:asc|desc]
func parseSort(s string) (*domain.Sort, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	key, direction, _ := strings.Cut(s, ":")
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("invalid sort %q, key is required", s)
	}

	direction = strings.ToLower(strings.TrimSpace(direction))
	switch direction {
	case "":
		direction = domain.SortAsc
	case domain.SortAsc, domain.SortDesc:
	default:
		return nil, fmt.Errorf("invalid sort direction %q", direction)
	}

	return &domain.Sort{Key: key, Direction: direction}, nil
}
