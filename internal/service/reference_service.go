package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/repository"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

type identityUserReader interface {
	FindUserIDByEmail(ctx context.Context, email string) (models.UserRef, error)
	ExistingUserIDs(ctx context.Context, ids []models.UserRef) (map[models.UserRef]bool, error)
}

type userRefLister interface {
	ListUserRefs(ctx context.Context) ([]repository.UserRefRow, error)
}

// RefSource names a store holding identity user ids.
type RefSource struct {
	Store  string
	Lister userRefLister
}

// DanglingReference is a row whose user id resolves to nothing in the
// identity store.
type DanglingReference struct {
	Store  string         `json:"store"`
	Table  string         `json:"table"`
	RowID  int64          `json:"rowId"`
	Email  string         `json:"email"`
	UserID models.UserRef `json:"userId"`
	Reason string         `json:"reason"`
}

// ReferenceService resolves and audits cross-store user references.
//
// Academic students and teachers and support audit logs carry an identity
// user id as a plain value. No database constraint backs it: the identity
// store is a different database. A reference is valid only because the
// identity user was written first. This service is the one place that reads
// across the boundary, and it never repairs anything.
type ReferenceService struct {
	identity identityUserReader
	sources  []RefSource
	logger   *zap.Logger
}

// NewReferenceService constructs ReferenceService. FindDangling audits the
// given sources in order.
func NewReferenceService(identity identityUserReader, logger *zap.Logger, sources ...RefSource) *ReferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceService{identity: identity, sources: sources, logger: logger}
}

// ResolveUser returns the identity id for email. Callers copy the result
// into rows of other stores; the value is not re-checked afterwards.
func (s *ReferenceService) ResolveUser(ctx context.Context, email string) (models.UserRef, error) {
	email = normalizeEmail(email)
	ref, err := s.identity.FindUserIDByEmail(ctx, email)
	if err != nil {
		return 0, classify(lookupError(err, fmt.Sprintf("identity user %s not found", email), "resolve identity user"), "failed to resolve identity user")
	}
	if !ref.Valid() {
		return 0, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("identity user %s has invalid id %d", email, ref))
	}
	return ref, nil
}

// FindDangling compares every user reference held by the sources with the
// identity store and reports the ones that do not resolve.
func (s *ReferenceService) FindDangling(ctx context.Context) ([]DanglingReference, error) {
	var refs []repository.UserRefRow
	var stores []string
	for _, src := range s.sources {
		rows, err := src.Lister.ListUserRefs(ctx)
		if err != nil {
			return nil, classify(err, fmt.Sprintf("failed to list %s user references", src.Store))
		}
		refs = append(refs, rows...)
		for range rows {
			stores = append(stores, src.Store)
		}
	}

	ids := make([]models.UserRef, 0, len(refs))
	seen := make(map[models.UserRef]bool, len(refs))
	for _, ref := range refs {
		if ref.UserID.Valid() && !seen[ref.UserID] {
			seen[ref.UserID] = true
			ids = append(ids, ref.UserID)
		}
	}

	existing, err := s.identity.ExistingUserIDs(ctx, ids)
	if err != nil {
		return nil, classify(err, "failed to look up identity users")
	}

	dangling := []DanglingReference{}
	for i, ref := range refs {
		reason := ""
		switch {
		case !ref.UserID.Valid():
			reason = "invalid user id"
		case !existing[ref.UserID]:
			reason = "identity user missing"
		default:
			continue
		}
		dangling = append(dangling, DanglingReference{
			Store:  stores[i],
			Table:  ref.Table,
			RowID:  ref.RowID,
			Email:  ref.Email,
			UserID: ref.UserID,
			Reason: reason,
		})
	}

	if len(dangling) > 0 {
		s.logger.Warn("dangling user references found", zap.Int("count", len(dangling)), zap.Int("checked", len(refs)))
	}
	return dangling, nil
}

// normalizeEmail is the form identity users are stored and looked up by.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
