package directory

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/catalog"
)

// itemRequiredFields is the minimum shape a prefetched record must have to
// back a PortfolioItem.
var itemRequiredFields = []string{"id", "tags", "name", "title"}

// PortfolioItem wraps one catalog package representing a piece of student
// work. Its tags are authoritative per item; the owning portfolio's tags
// are derived from them, so every tag mutation here cascades into a
// portfolio-level recomputation.
type PortfolioItem struct {
	portfolio *StudentPortfolio
	inv       catalog.Invoker
	rec       catalog.Record
}

// NewItemFromRecord builds an item from an already-fetched record, saving
// the round trip after creation or a search. The record must carry the
// minimum required fields.
func NewItemFromRecord(portfolio *StudentPortfolio, rec catalog.Record) (*PortfolioItem, error) {
	for _, field := range itemRequiredFields {
		if _, ok := rec[field]; !ok {
			return nil, apperror.ValidationFailed(field,
				fmt.Sprintf("item record missing field %q", field))
		}
	}
	return &PortfolioItem{portfolio: portfolio, inv: portfolio.inv, rec: rec}, nil
}

// LoadItem fetches an item by its package id.
func LoadItem(ctx context.Context, portfolio *StudentPortfolio, id string) (*PortfolioItem, error) {
	rec, err := portfolio.inv.Call(ctx, "package_show", catalog.Params{"id": id})
	if err != nil {
		return nil, fmt.Errorf("loading item %s: %w", id, err)
	}
	return NewItemFromRecord(portfolio, rec)
}

// ID returns the item's package id.
func (i *PortfolioItem) ID() string { return i.rec.String("id") }

// Author returns the authoring username.
func (i *PortfolioItem) Author() string { return i.rec.String("author") }

// Name returns the item's catalog identifier.
func (i *PortfolioItem) Name() string { return i.rec.String("name") }

// Title returns the display title.
func (i *PortfolioItem) Title() string { return i.rec.String("title") }

// Description returns the free-text description.
func (i *PortfolioItem) Description() string { return i.rec.String("notes") }

// Tags returns the item's own tag set.
func (i *PortfolioItem) Tags() []string { return i.rec.TagNames() }

// SetTitle patches the display title.
func (i *PortfolioItem) SetTitle(ctx context.Context, title string) error {
	return i.patch(ctx, catalog.Params{"title": title})
}

// SetDescription patches the description.
func (i *PortfolioItem) SetDescription(ctx context.Context, description string) error {
	return i.patch(ctx, catalog.Params{"notes": description})
}

// SetTags replaces the item's tags with the deduplicated input and then
// unconditionally recomputes the owning portfolio's aggregate tags,
// including when tags is empty, which may shrink the aggregate.
func (i *PortfolioItem) SetTags(ctx context.Context, tags []string) error {
	seen := make(map[string]bool, len(tags))
	deduped := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !seen[tag] {
			seen[tag] = true
			deduped = append(deduped, tag)
		}
	}

	if err := i.patch(ctx, catalog.Params{"tags": catalog.TagList(deduped)}); err != nil {
		return err
	}
	return i.portfolio.Reload(ctx)
}

// AddTags adds one or more tags to the item's current set.
func (i *PortfolioItem) AddTags(ctx context.Context, tags ...string) error {
	return i.SetTags(ctx, append(i.Tags(), tags...))
}

func (i *PortfolioItem) patch(ctx context.Context, values catalog.Params) error {
	params := catalog.Params{"id": i.ID()}
	for key, value := range values {
		params[key] = value
	}
	rec, err := i.inv.Call(ctx, "package_patch", params)
	if err != nil {
		return fmt.Errorf("patching item %s: %w", i.ID(), err)
	}
	i.rec = rec
	return nil
}

// UploadFile attaches a file to the item. Files attach to items only,
// never to the portfolio itself; an item can carry several.
func (i *PortfolioItem) UploadFile(ctx context.Context, title, description, filename string, file io.Reader) error {
	_, err := i.inv.Upload(ctx, "resource_create", catalog.Params{
		"package_id":  i.ID(),
		"url":         "",
		"name":        title,
		"description": description,
	}, filename, file)
	if err != nil {
		return fmt.Errorf("uploading file to item %s: %w", i.ID(), err)
	}
	return nil
}

// Delete is intentionally unimplemented.
func (i *PortfolioItem) Delete(context.Context) error {
	return fmt.Errorf("item delete: %w", errors.ErrUnsupported)
}

// DeleteFile is intentionally unimplemented.
func (i *PortfolioItem) DeleteFile(context.Context, string) error {
	return fmt.Errorf("item file delete: %w", errors.ErrUnsupported)
}

// FileList is intentionally unimplemented.
func (i *PortfolioItem) FileList(context.Context) ([]catalog.Record, error) {
	return nil, fmt.Errorf("item file list: %w", errors.ErrUnsupported)
}
