package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-assistant/internal/config"
	infraBQ "github.com/dvloznov/expense-assistant/internal/infra/bigquery"
	"github.com/dvloznov/expense-assistant/internal/infra/postgres"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/rs/zerolog"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// runner applies migrations to one backend.
type runner interface {
	ensureTable(ctx context.Context) error
	applied(ctx context.Context) ([]AppliedMigration, error)
	apply(ctx context.Context, m Migration, appliedBy string) error
	Close() error
}

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

var (
	target    = flag.String("target", "postgres", "Schema to migrate: postgres or bigquery")
	appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	cfgFile   = flag.String("config", "", "Optional config file (env vars take precedence)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.NewWithConfig(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	ctx := logger.WithContext(context.Background(), log)

	r, migrations, err := setup(ctx, cfg, *target)
	if err != nil {
		log.Fatal().Err(err).Str("target", *target).Msg("Failed to prepare migrations")
	}
	defer r.Close()

	if err := run(ctx, r, migrations, *appliedBy, log); err != nil {
		log.Fatal().Err(err).Str("target", *target).Msg("Migration failed")
	}
}

// setup opens the backend named by target and loads its migrations.
func setup(ctx context.Context, cfg *config.Config, target string) (runner, []Migration, error) {
	switch target {
	case "postgres":
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
		migrations, err := readMigrations(postgres.Migrations, "migrations", nil)
		if err != nil {
			return nil, nil, err
		}
		r, err := newPostgresRunner(ctx, cfg.DatabaseURL)
		return r, migrations, err

	case "bigquery":
		if cfg.GCPProjectID == "" {
			return nil, nil, fmt.Errorf("GCP_PROJECT_ID is required for the bigquery target")
		}
		replacer := strings.NewReplacer("{{PROJECT_ID}}", cfg.GCPProjectID, "{{DATASET_ID}}", cfg.BQDataset)
		migrations, err := readMigrations(infraBQ.Migrations, "migrations", replacer)
		if err != nil {
			return nil, nil, err
		}
		r, err := newBigQueryRunner(ctx, cfg.GCPProjectID, cfg.BQDataset)
		return r, migrations, err

	default:
		return nil, nil, fmt.Errorf("unknown target %q", target)
	}
}

// run applies every pending migration in version order. A migration whose
// checksum changed after it was applied stops the run.
func run(ctx context.Context, r runner, migrations []Migration, appliedBy string, log zerolog.Logger) error {
	if err := r.ensureTable(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	appliedMigrations, err := r.applied(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}
	log.Info().Int("files", len(migrations)).Int("applied", len(appliedMigrations)).Msg("Loaded migrations")

	pending, err := pendingMigrations(migrations, appliedMigrations)
	if err != nil {
		return err
	}

	for _, m := range pending {
		log.Info().Msgf("  [RUN]  %04d_%s", m.Version, m.Name)
		if err := r.apply(ctx, m, appliedBy); err != nil {
			return fmt.Errorf("migration %04d_%s: %w", m.Version, m.Name, err)
		}
		log.Info().Msgf("  [OK]   %04d_%s", m.Version, m.Name)
	}

	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("count", len(pending)).Msg("Successfully applied migrations")
	}
	return nil
}

// readMigrations loads the migration files of dir in fsys, sorted by
// version. The checksum covers the file as written, before replacer runs, so
// it does not depend on the project or dataset it is applied to.
func readMigrations(fsys fs.FS, dir string, replacer *strings.Replacer) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, name, ok := parseFilename(entry.Name())
		if !ok {
			return nil, fmt.Errorf("invalid migration filename: %s", entry.Name())
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		sql := string(content)
		if replacer != nil {
			sql = replacer.Replace(sql)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// pendingMigrations returns the migrations not yet applied. It fails when an
// applied migration's file was edited afterwards.
func pendingMigrations(all []Migration, applied []AppliedMigration) ([]Migration, error) {
	done := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		done[am.Version] = am
	}

	var pending []Migration
	for _, m := range all {
		am, ok := done[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			return nil, fmt.Errorf("migration %04d_%s was modified after it was applied (checksum %s, now %s)",
				m.Version, m.Name, am.Checksum, m.Checksum)
		}
	}
	return pending, nil
}
