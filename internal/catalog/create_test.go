package catalog

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentfolio/studentfolio/internal/apperror"
)

// collidingInvoker rejects package_create with the catalog's URL-taken
// signal a configurable number of times before succeeding.
type collidingInvoker struct {
	rejections int
	attempts   []string
}

func (m *collidingInvoker) Call(_ context.Context, action string, params Params) (Record, error) {
	if action != "package_create" {
		return Record{}, nil
	}
	name, _ := params["name"].(string)
	m.attempts = append(m.attempts, name)
	if len(m.attempts) <= m.rejections {
		return nil, apperror.ValidationFailed("name", urlTakenMessage)
	}
	return Record{"id": "pkg-1", "name": name}, nil
}

func (m *collidingInvoker) Upload(_ context.Context, _ string, _ Params, _ string, _ io.Reader) (Record, error) {
	return Record{}, nil
}

func (m *collidingInvoker) WithAPIKey(_ string) Invoker { return m }

func TestCreatePackageFirstTry(t *testing.T) {
	inv := &collidingInvoker{}
	rec, err := CreatePackage(context.Background(), inv, "Bob Report", Params{"title": "Bob Report"})
	require.NoError(t, err)
	assert.Equal(t, "pkg-1", rec.String("id"))
	assert.Equal(t, []string{"bob-report"}, inv.attempts)
}

func TestCreatePackageRetriesWithFreshSuffix(t *testing.T) {
	inv := &collidingInvoker{rejections: 2}
	rec, err := CreatePackage(context.Background(), inv, "Bob Report", Params{})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.String("name"))
	require.Len(t, inv.attempts, 3)

	assert.Equal(t, "bob-report", inv.attempts[0])
	seen := map[string]bool{}
	for _, name := range inv.attempts {
		assert.False(t, seen[name], "every retry must attempt a distinct name")
		seen[name] = true
		assert.Equal(t, name, Slug(name), "attempted names must be catalog-safe")
	}
}

func TestCreatePackageBudgetExhausted(t *testing.T) {
	inv := &collidingInvoker{rejections: 10}
	_, err := CreatePackage(context.Background(), inv, "Bob Report", Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrURLConflict)
	assert.Len(t, inv.attempts, createRetries)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.NotEmpty(t, appErr.Name, "conflict error must carry the attempted name")
}

func TestCreatePackageOtherValidationErrorAborts(t *testing.T) {
	inv := &failingInvoker{err: apperror.ValidationFailed("title", "Missing value")}
	_, err := CreatePackage(context.Background(), inv, "Bob Report", Params{})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, 1, inv.calls, "non-collision failures must not be retried")
}

type failingInvoker struct {
	err   error
	calls int
}

func (m *failingInvoker) Call(_ context.Context, _ string, _ Params) (Record, error) {
	m.calls++
	return nil, m.err
}

func (m *failingInvoker) Upload(_ context.Context, _ string, _ Params, _ string, _ io.Reader) (Record, error) {
	return nil, m.err
}

func (m *failingInvoker) WithAPIKey(_ string) Invoker { return m }
