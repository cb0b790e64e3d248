package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	appbootstrap "github.com/wolfman30/avito-asker/internal/app/bootstrap"
	appconfig "github.com/wolfman30/avito-asker/internal/config"
	"github.com/wolfman30/avito-asker/internal/forms"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

type options struct {
	file     string
	name     string
	target   string
	dryRun   bool
	printOut bool
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	var opts options
	flag.StringVar(&opts.file, "file", cfg.FormFile, "path to the YAML or JSON form definition")
	flag.StringVar(&opts.name, "name", "", "store the form under this name (defaults to the document name, then FORM_NAME)")
	flag.StringVar(&opts.target, "target", "redis", "where to store the form: redis or postgres")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "validate only")
	flag.BoolVar(&opts.printOut, "print", false, "print the normalized JSON document")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("seed-form failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, opts options, logger *logging.Logger) error {
	if strings.TrimSpace(opts.file) == "" {
		return errors.New("-file is required")
	}
	name := opts.name
	if name == "" {
		name = cfg.FormName
	}

	def, err := forms.NewFileStore(opts.file).Load(ctx, name)
	if err != nil {
		return err
	}
	if opts.name != "" && opts.name != def.Name() {
		doc := def.Document()
		doc.Name = opts.name
		if def, err = forms.Parse(doc); err != nil {
			return err
		}
	}
	logger.Info("form is valid", "form", def.Name(), "states", def.Len(), "fields", def.FieldOrder())

	if opts.printOut {
		raw, err := json.MarshalIndent(def.Document(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
	}
	if opts.dryRun {
		return nil
	}

	saver, closeFn, err := buildSaver(ctx, cfg, opts.target, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := saver.Save(ctx, def); err != nil {
		return err
	}
	logger.Info("form stored", "form", def.Name(), "target", opts.target)
	return nil
}

func buildSaver(ctx context.Context, cfg *appconfig.Config, target string, logger *logging.Logger) (forms.Saver, func(), error) {
	switch strings.ToLower(target) {
	case "redis":
		client := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, nil, fmt.Errorf("redis unreachable at %s", cfg.RedisAddr)
		}
		return forms.NewRedisStore(client, cfg.KeyPrefix), func() { _ = client.Close() }, nil
	case "postgres":
		pool, err := appbootstrap.BuildPostgresPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return forms.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown target %q", target)
	}
}
