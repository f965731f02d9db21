package directory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/catalog"
)

func TestLoadOrganization(t *testing.T) {
	f := newFakeCatalog()

	org, err := LoadOrganization(context.Background(), f.admin(), "lut")
	require.NoError(t, err)

	assert.Equal(t, "lut", org.Name())
	assert.Equal(t, "Lappeenranta University of Technology", org.Title())
	assert.True(t, org.IsUniversity())
	assert.False(t, org.IsCompany())
}

func TestLoadOrganizationNotFound(t *testing.T) {
	f := newFakeCatalog()

	_, err := LoadOrganization(context.Background(), f.admin(), "nowhere")
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateUniversity(t *testing.T) {
	f := newFakeCatalog()

	org, err := CreateUniversity(context.Background(), f.admin(),
		"Aalto University", "Aalto University", "Espoo, Finland")
	require.NoError(t, err)

	assert.Equal(t, "aalto-university", org.Name())
	assert.Equal(t, "Aalto University", org.Title())
	assert.Equal(t, "Espoo, Finland", org.Description())
	assert.True(t, org.IsUniversity())
	assert.False(t, org.IsCompany())
}

func TestCreateCompany(t *testing.T) {
	f := newFakeCatalog()

	org, err := CreateCompany(context.Background(), f.admin(),
		"Globex", "Globex Oy", "")
	require.NoError(t, err)

	assert.True(t, org.IsCompany())
	assert.False(t, org.IsUniversity())
}

func TestCreateOrganizationNameExists(t *testing.T) {
	f := newFakeCatalog()

	_, err := CreateUniversity(context.Background(), f.admin(), "LUT", "Duplicate", "")
	require.ErrorIs(t, err, apperror.ErrNameExists)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "lut", appErr.Name)
}

func TestOrganizationClassificationAbsentMetadata(t *testing.T) {
	f := newFakeCatalog()
	ctx := context.Background()

	// Created outside this application, with no classification metadata.
	_, err := f.admin().Call(ctx, "organization_create", catalog.Params{
		"name":  "mystery",
		"title": "Mystery Org",
	})
	require.NoError(t, err)

	org, err := LoadOrganization(ctx, f.admin(), "mystery")
	require.NoError(t, err)
	assert.False(t, org.IsUniversity())
	assert.False(t, org.IsCompany())
}

func TestOrganizationPatchReplacesRecord(t *testing.T) {
	f := newFakeCatalog()
	ctx := context.Background()

	org, err := LoadOrganization(ctx, f.admin(), "acme")
	require.NoError(t, err)

	require.NoError(t, org.SetTitle(ctx, "Acme Corporation"))
	assert.Equal(t, "Acme Corporation", org.Title())
	assert.Equal(t, "acme", org.Name(), "untouched fields survive the patch")

	require.NoError(t, org.SetDescription(ctx, "Road runner supplies"))
	assert.Equal(t, "Road runner supplies", org.Description())
	assert.Equal(t, "Acme Corporation", org.Title())
	assert.True(t, org.IsCompany(), "classification survives field patches")
}

func TestOrganizationUploadLogo(t *testing.T) {
	f := newFakeCatalog()
	ctx := context.Background()

	org, err := LoadOrganization(ctx, f.admin(), "lut")
	require.NoError(t, err)
	require.Empty(t, org.ImageURL())

	err = org.UploadLogo(ctx, "logo.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Contains(t, org.ImageURL(), "logo.png")
}

func TestOrganizationDeleteUnsupported(t *testing.T) {
	f := newFakeCatalog()

	org, err := LoadOrganization(context.Background(), f.admin(), "lut")
	require.NoError(t, err)
	assert.ErrorIs(t, org.Delete(context.Background()), errors.ErrUnsupported)
}
