package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rabiesresq/rabiesresq/internal/config"
	"github.com/rabiesresq/rabiesresq/internal/domain/casemgmt"
	"github.com/rabiesresq/rabiesresq/internal/domain/triage"
	"github.com/rabiesresq/rabiesresq/internal/platform/db"
	"github.com/rabiesresq/rabiesresq/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "rabiesresq-server",
		Short:        "Rabies post-exposure clinic API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(clinicCmd())
	rootCmd.AddCommand(maintenanceCmd())
	rootCmd.AddCommand(classifyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// connect loads and validates config and opens the pool. Callers close the pool.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func serviceOptions(cfg *config.Config) (casemgmt.Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return casemgmt.Options{}, err
	}
	return casemgmt.Options{
		Location:        loc,
		NoShowGrace:     cfg.NoShowGrace(),
		ArchiveAfter:    cfg.ArchiveAfter(),
		AppointmentHour: cfg.DefaultAppointmentHour,
	}, nil
}

func newService(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*casemgmt.Service, error) {
	opts, err := serviceOptions(cfg)
	if err != nil {
		return nil, err
	}
	repos := casemgmt.Repositories{
		Clinics:      casemgmt.NewClinicRepoPG(pool),
		Patients:     casemgmt.NewPatientRepoPG(pool),
		Cases:        casemgmt.NewCaseRepoPG(pool),
		Appointments: casemgmt.NewAppointmentRepoPG(pool),
		Notes:        casemgmt.NewNoteRepoPG(pool),
		Doses:        casemgmt.NewDoseRepoPG(pool),
	}
	return casemgmt.NewService(db.NewTxRunner(pool), repos, opts, logger), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func clinicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Manage clinics",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a clinic",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			address, _ := cmd.Flags().GetString("address")
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := newService(cfg, pool, newLogger(cfg))
			if err != nil {
				return err
			}
			clinic, err := svc.CreateClinic(ctx, name, address)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created clinic %d (%s).\n", clinic.ID, clinic.Name)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Clinic name")
	createCmd.Flags().String("address", "", "Clinic address")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clinics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := newService(cfg, pool, newLogger(cfg))
			if err != nil {
				return err
			}
			clinics, err := svc.ListClinics(ctx)
			if err != nil {
				return err
			}
			printClinics(cmd.OutOrStdout(), clinics)
			return nil
		},
	})

	return cmd
}

func printClinics(w io.Writer, clinics []*casemgmt.Clinic) {
	fmt.Fprintf(w, "%-6s %-30s %s\n", "ID", "NAME", "ADDRESS")
	for _, c := range clinics {
		address := ""
		if c.Address != nil {
			address = *c.Address
		}
		fmt.Fprintf(w, "%-6d %-30s %s\n", c.ID, c.Name, address)
	}
}

// sweeper is the slice of the service the maintenance command needs.
type sweeper interface {
	ListClinics(ctx context.Context) ([]*casemgmt.Clinic, error)
	RunMaintenance(ctx context.Context, clinicID int64) (*casemgmt.SweepResult, error)
}

// runMaintenance sweeps one clinic, or every clinic when clinicID is 0. A
// failure on one clinic does not stop the others.
func runMaintenance(ctx context.Context, svc sweeper, clinicID int64, w io.Writer) error {
	ids := []int64{clinicID}
	if clinicID == 0 {
		clinics, err := svc.ListClinics(ctx)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, c := range clinics {
			ids = append(ids, c.ID)
		}
	}

	failed := 0
	for _, id := range ids {
		res, err := svc.RunMaintenance(ctx, id)
		if err != nil {
			failed++
			fmt.Fprintf(w, "clinic %d: sweep failed: %v\n", id, err)
			continue
		}
		fmt.Fprintf(w, "clinic %d: %d case(s) to No Show, %d archived, %d appointment(s) No Show, %d removed\n",
			id, res.ToNoShow, res.ArchivedFromNoShow, res.AppointmentsNoShow, res.AppointmentsRemoved)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d clinic sweep(s) failed", failed, len(ids))
	}
	return nil
}

func maintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Case lifecycle maintenance",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Mark missed appointments as No Show and archive stale cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinicID, _ := cmd.Flags().GetInt64("clinic-id")
			if clinicID < 0 {
				return fmt.Errorf("--clinic-id must not be negative")
			}

			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := newService(cfg, pool, newLogger(cfg))
			if err != nil {
				return err
			}
			return runMaintenance(ctx, svc, clinicID, cmd.OutOrStdout())
		},
	}
	runCmd.Flags().Int64("clinic-id", 0, "Clinic to sweep (0 sweeps every clinic)")
	cmd.AddCommand(runCmd)

	return cmd
}

// classifyCmd runs the triage rules offline, e.g. for checking a form by hand.
func classifyCmd() *cobra.Command {
	var e triage.Exposure
	var spontaneous, induced string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Print the exposure category for a set of intake answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.BleedingType == "" {
				e.BleedingType = triage.BleedingTypeFrom(spontaneous, induced)
			}
			fmt.Fprintln(cmd.OutOrStdout(), triage.Classify(e))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&e.TypeOfExposure, "exposure", "", "Type of exposure (Bite, Scratch, ...)")
	f.StringVar(&e.AffectedArea, "area", "", "Affected body area")
	f.StringVar(&e.WoundDescription, "wound", "", "Wound description")
	f.StringVar(&e.BleedingType, "bleeding", "", "Bleeding type; derived from --spontaneous/--induced when empty")
	f.StringVar(&spontaneous, "spontaneous", "", "Spontaneous bleeding (Yes/No)")
	f.StringVar(&induced, "induced", "", "Induced bleeding (Yes/No)")
	f.StringVar(&e.AnimalStatus, "animal-status", "", "Animal status (Healthy, Sick, Died, Lost)")
	return cmd
}
