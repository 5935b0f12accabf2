package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/repository"
	"github.com/noah-isme/academic-records/internal/service"
	"github.com/noah-isme/academic-records/pkg/config"
	"github.com/noah-isme/academic-records/pkg/database"
	"github.com/noah-isme/academic-records/pkg/logger"
)

// Runtime is what the admin commands operate on.
type Runtime interface {
	Migrate(ctx context.Context, store string) error
	Bootstrap(ctx context.Context, stores []string) (*service.BootstrapSummary, error)
	Report(ctx context.Context) (*models.EnrollmentReport, error)
	DanglingRefs(ctx context.Context) ([]service.DanglingReference, error)
	Counts(ctx context.Context) (map[string]repository.Counts, error)
	Close() error
}

// RuntimeFactory builds a Runtime once a command actually needs the stores.
type RuntimeFactory func(ctx context.Context) (Runtime, error)

// StoreRuntime runs admin operations against the three configured databases.
type StoreRuntime struct {
	stores    *database.Stores
	identity  *repository.IdentityRepository
	academic  *repository.AcademicRepository
	support   *repository.SupportRepository
	bootstrap *service.BootstrapService
	reports   *service.ReportService
	refs      *service.ReferenceService
	logger    *zap.Logger
}

// NewStoreRuntime opens every store. Missing connection strings fail here,
// before any command does work.
func NewStoreRuntime(cfg *config.Config, log *zap.Logger) (*StoreRuntime, error) {
	stores, err := database.OpenStores(cfg)
	if err != nil {
		return nil, err
	}

	identity := repository.NewIdentityRepository(stores.Identity)
	academic := repository.NewAcademicRepository(stores.Academic)
	support := repository.NewSupportRepository(stores.Support)
	refs := service.NewReferenceService(identity, logger.ForStore(log, config.StoreIdentity),
		service.RefSource{Store: config.StoreAcademic, Lister: academic},
		service.RefSource{Store: config.StoreSupport, Lister: support},
	)

	return &StoreRuntime{
		stores:    stores,
		identity:  identity,
		academic:  academic,
		support:   support,
		bootstrap: service.NewBootstrapService(identity, academic, support, refs, log, service.BootstrapConfig{}),
		reports:   service.NewReportService(repository.NewReportRepository(stores.Academic), nil, 0, logger.ForStore(log, config.StoreAcademic)),
		refs:      refs,
		logger:    log,
	}, nil
}

// Migrate applies the embedded schema of one store.
func (r *StoreRuntime) Migrate(ctx context.Context, store string) error {
	db, err := r.stores.Get(store)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, store); err != nil {
		return err
	}
	logger.ForStore(r.logger, store).Info("migrations applied")
	return nil
}

func (r *StoreRuntime) Bootstrap(ctx context.Context, stores []string) (*service.BootstrapSummary, error) {
	return r.bootstrap.Run(ctx, stores...)
}

func (r *StoreRuntime) Report(ctx context.Context) (*models.EnrollmentReport, error) {
	return r.reports.EnrollmentReport(ctx)
}

func (r *StoreRuntime) DanglingRefs(ctx context.Context) ([]service.DanglingReference, error) {
	return r.refs.FindDangling(ctx)
}

// Counts returns row counts per table for each store.
func (r *StoreRuntime) Counts(ctx context.Context) (map[string]repository.Counts, error) {
	out := make(map[string]repository.Counts, 3)
	for store, count := range map[string]func(context.Context) (repository.Counts, error){
		config.StoreIdentity: r.identity.Counts,
		config.StoreAcademic: r.academic.Counts,
		config.StoreSupport:  r.support.Counts,
	} {
		counts, err := count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count %s store: %w", store, err)
		}
		out[store] = counts
	}
	return out, nil
}

func (r *StoreRuntime) Close() error {
	return r.stores.Close()
}
