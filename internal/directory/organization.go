package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/catalog"
)

// Organization wraps a catalog organization record, re-purposed as a
// university or a company. The classification lives in an extensible
// key/value metadata pair; an organization with no Category metadata is
// neither a university nor a company.
type Organization struct {
	inv catalog.Invoker
	rec catalog.Record
}

// LoadOrganization fetches the organization with the given id or name.
func LoadOrganization(ctx context.Context, inv catalog.Invoker, id string) (*Organization, error) {
	rec, err := inv.Call(ctx, "organization_show", catalog.Params{
		"id":                id,
		"include_users":     false,
		"include_followers": false,
	})
	if err != nil {
		return nil, fmt.Errorf("loading organization %s: %w", id, err)
	}
	return &Organization{inv: inv, rec: rec}, nil
}

// CreateUniversity creates a new organization classified as a university.
// The name is normalized into a catalog identifier; a collision yields
// apperror.ErrNameExists.
func CreateUniversity(ctx context.Context, inv catalog.Invoker, name, title, description string) (*Organization, error) {
	return createOrganization(ctx, inv, name, title, description, categoryUniversity)
}

// CreateCompany creates a new organization classified as a company.
func CreateCompany(ctx context.Context, inv catalog.Invoker, name, title, description string) (*Organization, error) {
	return createOrganization(ctx, inv, name, title, description, categoryCompany)
}

func createOrganization(ctx context.Context, inv catalog.Invoker, name, title, description, category string) (*Organization, error) {
	rec, err := inv.Call(ctx, "organization_create", catalog.Params{
		"name":        catalog.Slug(name),
		"title":       title,
		"description": description,
		"extras": []catalog.Params{
			{"key": categoryKey, "value": category},
		},
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperror.ErrValidation) &&
			appErr.Field == "name" && strings.Contains(appErr.Message, "already exists") {
			return nil, apperror.NameExists(catalog.Slug(name))
		}
		return nil, err
	}
	return LoadOrganization(ctx, inv, rec.String("id"))
}

// ID returns the organization's catalog id.
func (o *Organization) ID() string { return o.rec.String("id") }

// Name returns the immutable catalog-unique identifier.
func (o *Organization) Name() string { return o.rec.String("name") }

// Title returns the display title.
func (o *Organization) Title() string { return o.rec.String("title") }

// Description returns the free-text description.
func (o *Organization) Description() string { return o.rec.String("description") }

// ImageURL returns the logo URL, if any.
func (o *Organization) ImageURL() string { return o.rec.String("image_display_url") }

// IsUniversity reports whether the Category metadata equals "University".
// Missing or empty metadata means false, not an error.
func (o *Organization) IsUniversity() bool {
	category, ok := o.rec.ExtraValue(categoryKey)
	return ok && category == categoryUniversity
}

// IsCompany reports whether the Category metadata equals "Company".
func (o *Organization) IsCompany() bool {
	category, ok := o.rec.ExtraValue(categoryKey)
	return ok && category == categoryCompany
}

// SetTitle patches the display title. The in-memory record is replaced
// with the catalog's response, so server-side normalization is reflected.
func (o *Organization) SetTitle(ctx context.Context, title string) error {
	return o.patch(ctx, catalog.Params{"title": title})
}

// SetDescription patches the description.
func (o *Organization) SetDescription(ctx context.Context, description string) error {
	return o.patch(ctx, catalog.Params{"description": description})
}

// Update patches several fields at once.
func (o *Organization) Update(ctx context.Context, values catalog.Params) error {
	return o.patch(ctx, values)
}

func (o *Organization) patch(ctx context.Context, values catalog.Params) error {
	params := catalog.Params{"id": o.ID()}
	for key, value := range values {
		params[key] = value
	}
	rec, err := o.inv.Call(ctx, "organization_patch", params)
	if err != nil {
		return fmt.Errorf("patching organization %s: %w", o.ID(), err)
	}
	o.rec = rec
	return nil
}

// UploadLogo replaces the organization's logo with the given file.
func (o *Organization) UploadLogo(ctx context.Context, filename string, file io.Reader) error {
	rec, err := o.inv.Upload(ctx, "organization_patch",
		catalog.Params{"id": o.ID()}, filename, file)
	if err != nil {
		return fmt.Errorf("uploading logo for organization %s: %w", o.ID(), err)
	}
	o.rec = rec
	return nil
}

// Delete is intentionally unimplemented: removing an organization would
// orphan every portfolio owned by it.
func (o *Organization) Delete(context.Context) error {
	return fmt.Errorf("organization delete: %w", errors.ErrUnsupported)
}
