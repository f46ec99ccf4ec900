package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// FilesystemSpec pairs a dialect with the migration filesystem it should
// apply, mirroring the teacher's migrations.FilesystemSpec.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc is invoked once per validated dialect target; the caller
// typically feeds fsys into a persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Option configures a Register call.
type Option func(*registration)

type registration struct {
	sourceLabel       string
	validationTargets []string
}

// WithValidationTargets restricts which dialects Register invokes
// registerFn for; unset defaults to both postgres and sqlite.
func WithValidationTargets(targets ...string) Option {
	return func(r *registration) {
		if len(targets) == 0 {
			return
		}
		next := make([]string, 0, len(targets))
		for _, t := range targets {
			t = strings.TrimSpace(strings.ToLower(t))
			if t != "" {
				next = append(next, t)
			}
		}
		if len(next) > 0 {
			r.validationTargets = next
		}
	}
}

// Filesystems returns the one migration tree, labeled for both dialects it
// is valid against.
func Filesystems() ([]FilesystemSpec, error) {
	root := GetMigrationsFS()
	sub, err := fs.Sub(root, "sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sql filesystem: %w", err)
	}

	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob migrations: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("migrations: no *.up.sql files found under sql/")
	}

	return []FilesystemSpec{
		{Dialect: DialectPostgres, Path: "sql", FS: sub},
		{Dialect: DialectSQLite, Path: "sql", FS: sub},
	}, nil
}

// Register resolves the migration filesystems and invokes registerFn once
// per validated dialect target, matching the teacher's
// migrations.Register contract.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) error {
	reg := registration{
		sourceLabel:       "chai",
		validationTargets: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}

	filesystems, err := Filesystems()
	if err != nil {
		return err
	}

	targets := map[string]struct{}{}
	for _, t := range reg.validationTargets {
		targets[t] = struct{}{}
	}

	for _, spec := range filesystems {
		if _, want := targets[spec.Dialect]; !want {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.sourceLabel, spec.FS); err != nil {
			return fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return nil
}
