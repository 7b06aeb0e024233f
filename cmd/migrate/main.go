// Command migrate manages the PostgreSQL schema of the retail engine.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/erp/retailcore/internal/infrastructure/config"
	"github.com/erp/retailcore/internal/infrastructure/logger"
	"github.com/erp/retailcore/internal/infrastructure/migration"
	"github.com/erp/retailcore/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type env struct {
	dir  string // empty selects the embedded set
	args []string
	log  *zap.Logger
}

func (e *env) source() fs.FS {
	if e.dir == "" {
		return nil
	}
	return os.DirFS(e.dir)
}

func (e *env) arg(i int, usage string) (string, error) {
	if len(e.args) <= i {
		return "", fmt.Errorf("usage: migrate %s", usage)
	}
	return e.args[i], nil
}

type command struct {
	usage   string
	summary string
	offline func(*env) error
	online  func(*env, *migration.Migrator) error
}

var commands = map[string]command{
	"up":   {usage: "up", summary: "apply every pending migration", online: func(_ *env, m *migration.Migrator) error { return m.Up() }},
	"down": {usage: "down", summary: "roll back every migration", online: func(_ *env, m *migration.Migrator) error { return m.Down() }},
	"step": {usage: "step <n>", summary: "apply n migrations, negative n rolls back", online: func(e *env, m *migration.Migrator) error {
		s, err := e.arg(1, "step <n>")
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("step count %q: %w", s, err)
		}
		return m.Steps(n)
	}},
	"goto": {usage: "goto <version>", summary: "migrate up or down to version", online: func(e *env, m *migration.Migrator) error {
		v, err := versionArg(e)
		if err != nil {
			return err
		}
		return m.GoTo(uint(v))
	}},
	"version": {usage: "version", summary: "print the applied version", online: func(e *env, m *migration.Migrator) error {
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		e.log.Info("Schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return nil
	}},
	"force": {usage: "force <version>", summary: "mark version applied without running it", online: func(e *env, m *migration.Migrator) error {
		v, err := versionArg(e)
		if err != nil {
			return err
		}
		return m.Force(int(v))
	}},
	"drop": {usage: "drop -confirm", summary: "drop every database object", online: func(e *env, m *migration.Migrator) error {
		if !slices.Contains(e.args[1:], "-confirm") && !slices.Contains(e.args[1:], "--confirm") {
			return errors.New("refusing to drop without -confirm")
		}
		return m.Drop()
	}},
	"create": {usage: "create <name> [description]", summary: "scaffold an up/down pair", offline: func(e *env) error {
		name, err := e.arg(1, "create <name> [description]")
		if err != nil {
			return err
		}
		desc, _ := e.arg(2, "")
		dir := e.dir
		if dir == "" {
			dir = "migrations"
		}
		up, down, err := migration.Scaffold(dir, name, desc, time.Now())
		if err != nil {
			return err
		}
		e.log.Info("Migration created", zap.String("up", up), zap.String("down", down))
		return nil
	}},
	"list": {usage: "list", summary: "list the migration set", offline: func(e *env) error {
		set, err := migration.List(sourceOrEmbedded(e))
		if err != nil {
			return err
		}
		for _, m := range set {
			fmt.Printf("%d\t%s\n", m.Version, m.Name)
		}
		e.log.Info("Migration set", zap.Int("count", len(set)))
		return nil
	}},
	"validate": {usage: "validate", summary: "check every migration has a down half", offline: func(e *env) error {
		return migration.Validate(sourceOrEmbedded(e))
	}},
}

func main() {
	dir := flag.String("path", "", "migrations directory (default: embedded set)")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Usage = usage
	flag.Parse()

	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		usage()
		os.Exit(2)
	}

	logCfg := logger.ConfigFor("development")
	logCfg.Level, logCfg.TimeFormat = *level, time.DateTime
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	e := &env{dir: *dir, args: flag.Args(), log: log}
	if err := run(cmd, e); err != nil {
		log.Fatal("Migration command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
}

func run(cmd command, e *env) error {
	if cmd.offline != nil {
		return cmd.offline(e)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, e.source(), e.log)
	if err != nil {
		return err
	}
	defer m.Close()
	return cmd.online(e, m)
}

func versionArg(e *env) (uint64, error) {
	s, err := e.arg(1, e.args[0]+" <version>")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", s, err)
	}
	return v, nil
}

func sourceOrEmbedded(e *env) fs.FS {
	if src := e.source(); src != nil {
		return src
	}
	return migrations.FS
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)

	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "usage: migrate [flags] <command> [args]\n\ncommands:")
	for _, name := range names {
		fmt.Fprintf(out, "  %-28s %s\n", commands[name].usage, commands[name].summary)
	}
	fmt.Fprintln(out, "\nflags:")
	flag.PrintDefaults()
	fmt.Fprintln(out, "\nThe database comes from config.toml and RETAIL_DATABASE_* variables.")
}
