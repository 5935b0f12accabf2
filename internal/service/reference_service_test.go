package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/internal/repository"
	"github.com/noah-isme/academic-records/pkg/config"
	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

type fakeIdentityUsers struct {
	byEmail map[string]models.UserRef
}

func (f *fakeIdentityUsers) FindUserIDByEmail(ctx context.Context, email string) (models.UserRef, error) {
	ref, ok := f.byEmail[email]
	if !ok {
		return 0, sql.ErrNoRows
	}
	return ref, nil
}

func (f *fakeIdentityUsers) ExistingUserIDs(ctx context.Context, ids []models.UserRef) (map[models.UserRef]bool, error) {
	out := map[models.UserRef]bool{}
	for _, id := range ids {
		for _, ref := range f.byEmail {
			if ref == id {
				out[id] = true
			}
		}
	}
	return out, nil
}

type fakeRefRows struct {
	refs []repository.UserRefRow
	err  error
}

func (f *fakeRefRows) ListUserRefs(ctx context.Context) ([]repository.UserRefRow, error) {
	return f.refs, f.err
}

func TestReferenceServiceResolveUser(t *testing.T) {
	identity := &fakeIdentityUsers{byEmail: map[string]models.UserRef{"juan.perez@universidad.edu": 2}}
	svc := NewReferenceService(identity, nil)

	ref, err := svc.ResolveUser(context.Background(), " Juan.Perez@universidad.edu ")
	require.NoError(t, err)
	assert.Equal(t, models.UserRef(2), ref)

	_, err = svc.ResolveUser(context.Background(), "nobody@universidad.edu")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

// Nothing in the academic store stops a student from pointing at a user that
// was never created or was deleted later; the audit is the only detector.
func TestReferenceServiceFindDanglingReportsUnresolvedRefs(t *testing.T) {
	identity := &fakeIdentityUsers{byEmail: map[string]models.UserRef{"juan.perez@universidad.edu": 2, "maria.garcia@universidad.edu": 3}}
	academic := &fakeRefRows{refs: []repository.UserRefRow{
		{Table: "students", RowID: 1, Email: "juan.perez@universidad.edu", UserID: 2},
		{Table: "students", RowID: 2, Email: "orphan@universidad.edu", UserID: 77},
		{Table: "teachers", RowID: 1, Email: "maria.garcia@universidad.edu", UserID: 3},
		{Table: "teachers", RowID: 2, Email: "broken@universidad.edu", UserID: 0},
	}}
	svc := NewReferenceService(identity, nil, RefSource{Store: config.StoreAcademic, Lister: academic})

	dangling, err := svc.FindDangling(context.Background())
	require.NoError(t, err)
	require.Len(t, dangling, 2)
	assert.Equal(t, "orphan@universidad.edu", dangling[0].Email)
	assert.Equal(t, config.StoreAcademic, dangling[0].Store)
	assert.Equal(t, "identity user missing", dangling[0].Reason)
	assert.Equal(t, "invalid user id", dangling[1].Reason)
}

// Audit log actors are user ids copied at write time; deleting the user
// later leaves the support row pointing at nothing.
func TestReferenceServiceFindDanglingCoversSupportStore(t *testing.T) {
	identity := &fakeIdentityUsers{byEmail: map[string]models.UserRef{"admin@universidad.edu": 1}}
	academic := &fakeRefRows{refs: []repository.UserRefRow{{Table: "students", RowID: 1, Email: "a@x", UserID: 1}}}
	support := &fakeRefRows{refs: []repository.UserRefRow{
		{Table: "audit_logs", RowID: 10, UserID: 1},
		{Table: "audit_logs", RowID: 11, UserID: 42},
	}}
	svc := NewReferenceService(identity, nil,
		RefSource{Store: config.StoreAcademic, Lister: academic},
		RefSource{Store: config.StoreSupport, Lister: support},
	)

	dangling, err := svc.FindDangling(context.Background())
	require.NoError(t, err)
	require.Len(t, dangling, 1)
	assert.Equal(t, DanglingReference{Store: config.StoreSupport, Table: "audit_logs", RowID: 11, UserID: 42, Reason: "identity user missing"}, dangling[0])
}

func TestReferenceServiceFindDanglingSourceFailure(t *testing.T) {
	identity := &fakeIdentityUsers{byEmail: map[string]models.UserRef{}}
	support := &fakeRefRows{err: errors.New("permission denied for table audit_logs")}
	svc := NewReferenceService(identity, nil, RefSource{Store: config.StoreSupport, Lister: support})

	_, err := svc.FindDangling(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Contains(t, err.Error(), "support")
}

func TestReferenceServiceFindDanglingClean(t *testing.T) {
	identity := &fakeIdentityUsers{byEmail: map[string]models.UserRef{"a@x": 1}}
	academic := &fakeRefRows{refs: []repository.UserRefRow{{Table: "students", RowID: 1, Email: "a@x", UserID: 1}}}

	dangling, err := NewReferenceService(identity, nil, RefSource{Store: config.StoreAcademic, Lister: academic}).FindDangling(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dangling)
}
