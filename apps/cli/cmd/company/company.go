package company

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/queuex-cloud/queuex/domains/companies/be/repo"
	"github.com/queuex-cloud/queuex/domains/companies/be/service"
	"github.com/queuex-cloud/queuex/platform/go/logging"
	"github.com/queuex-cloud/queuex/platform/go/persistence"
	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// Command groups company registry helpers. Each subcommand wires the same
// stack the API server uses, pointed at the control-plane database given on
// the command line.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Company utilities (create/delete/list)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(deleteCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

type connFlags struct {
	databaseURL   string
	dbHost        string
	dbPort        int
	dbUser        string
	dbPassword    string
	adminDatabase string
}

func (f *connFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.databaseURL, "database-url", "", "control-plane PostgreSQL connection string")
	c.Flags().StringVar(&f.dbHost, "db-host", "localhost", "tenant database server host")
	c.Flags().IntVar(&f.dbPort, "db-port", 5432, "tenant database server port")
	c.Flags().StringVar(&f.dbUser, "db-user", "postgres", "tenant database user")
	c.Flags().StringVar(&f.dbPassword, "db-password", "", "tenant database password")
	c.Flags().StringVar(&f.adminDatabase, "admin-database", persistence.DefaultAdminDatabase, "maintenance database for CREATE/DROP DATABASE")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("db-password")
}

// wire builds the company service stack. The returned cleanup closes the
// control-plane pool and every cached tenant handle.
func (f *connFlags) wire(ctx context.Context) (*service.Service, func(), error) {
	logger, err := logging.NewLogger(logging.Config{Component: "queuexctl", Level: "info"})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: f.databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init control-plane pool: %w", err)
	}

	if err := persistence.EnsureControlPlane(ctx, pool); err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("bootstrap control-plane schema: %w", err)
	}

	defaults := tenant.Defaults{
		Host:     f.dbHost,
		Port:     f.dbPort,
		User:     f.dbUser,
		Password: f.dbPassword,
	}

	cache := persistence.NewConnCache(defaults, logger)
	provisioner := persistence.NewProvisioner(persistence.ProvisionerConfig{
		Defaults:      defaults,
		AdminDatabase: f.adminDatabase,
		Cache:         cache,
		Logger:        logger,
	})

	store, err := persistence.NewCompanyStore(pool)
	if err != nil {
		cache.EvictAll()
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init company store: %w", err)
	}
	svc := service.New(repo.NewPostgresRepository(store), provisioner, cache, logger)

	cleanup := func() {
		cache.EvictAll()
		persistence.ClosePool(pool)
		_ = logger.Sync()
	}
	return svc, cleanup, nil
}

func createCommand() *cobra.Command {
	var flags connFlags
	var slug, name string

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a company and provision its database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, cleanup, err := flags.wire(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			created, err := svc.Create(ctx, service.CreateInput{Slug: slug, Name: name})
			if err != nil {
				if errors.Is(err, service.ErrConflictSlug) {
					return fmt.Errorf("company %q already exists", slug)
				}
				return fmt.Errorf("create company: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Company created: %s (%s), database %s\n",
				created.Slug, created.ID, created.DBConfig.Database)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&slug, "slug", "", "company slug")
	c.Flags().StringVar(&name, "name", "", "company display name")
	_ = c.MarkFlagRequired("slug")
	_ = c.MarkFlagRequired("name")

	return c
}

func deleteCommand() *cobra.Command {
	var flags connFlags
	var slug string

	c := &cobra.Command{
		Use:   "delete",
		Short: "Drop a company's database and remove it from the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, cleanup, err := flags.wire(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.Delete(ctx, slug); err != nil {
				if errors.Is(err, service.ErrHasDependents) {
					return fmt.Errorf("company %q still has data: %w", slug, err)
				}
				return fmt.Errorf("delete company: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Company deleted: %s\n", slug)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&slug, "slug", "", "company slug")
	_ = c.MarkFlagRequired("slug")

	return c
}

func listCommand() *cobra.Command {
	var flags connFlags
	var activeOnly bool

	c := &cobra.Command{
		Use:   "list",
		Short: "List registered companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, cleanup, err := flags.wire(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.List(ctx, service.ListOptions{ActiveOnly: activeOnly, PageSize: 100})
			if err != nil {
				return fmt.Errorf("list companies: %w", err)
			}

			for _, company := range result.Companies {
				status := "inactive"
				if company.IsActive {
					status = "active"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					company.Slug, company.Name, company.DBConfig.Database, status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total: %d\n", result.TotalItems)
			return nil
		},
	}

	flags.register(c)
	c.Flags().BoolVar(&activeOnly, "active", false, "only active companies")

	return c
}
