package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/catalog"
)

// defaultPageSize is the search page size used by the item full-scan. The
// catalog caps a single page at 1000 rows; tests shrink this to force the
// pagination loop through several rounds.
const defaultPageSize = 1000

// StudentPortfolio wraps the catalog package aggregating one student's
// profile. At most one such package may exist per author; a duplicate is a
// detected integrity fault, not a condition this layer resolves.
type StudentPortfolio struct {
	inv      catalog.Invoker
	rec      catalog.Record
	pageSize int
}

// LoadPortfolioByID fetches a portfolio package directly.
func LoadPortfolioByID(ctx context.Context, inv catalog.Invoker, id string) (*StudentPortfolio, error) {
	rec, err := inv.Call(ctx, "package_show", catalog.Params{"id": id})
	if err != nil {
		return nil, fmt.Errorf("loading portfolio %s: %w", id, err)
	}
	return &StudentPortfolio{inv: inv, rec: rec, pageSize: defaultPageSize}, nil
}

// LoadPortfolioByUsername finds the unique portfolio authored by username.
//
// The search index is an approximate boundary: it may return records for
// similar authors or records forged by another catalog client, so the
// result is re-checked against exact author equality:
//
//   - zero matches: apperror.ErrNotFound
//   - one match with a different author: apperror.ErrNotFound (the index
//     returned a record that is not actually this user's; reject, don't
//     trust it)
//   - several matches: re-filter by exact author; more than one exact
//     match left is apperror.ErrInconsistent, surfaced unrepaired
func LoadPortfolioByUsername(ctx context.Context, inv catalog.Invoker, username string) (*StudentPortfolio, error) {
	query := fmt.Sprintf("author:%q AND groups:%s", username, GroupStudents)
	res, err := inv.Call(ctx, "package_search", catalog.Params{"q": query})
	if err != nil {
		return nil, fmt.Errorf("searching portfolio for %s: %w", username, err)
	}

	count := res.Int("count")
	results := res.Records("results")
	if count == 0 {
		return nil, apperror.NotFound("portfolio", username)
	}

	if count != 1 {
		var exact []catalog.Record
		for _, rec := range results {
			if rec.String("author") == username {
				exact = append(exact, rec)
			}
		}
		switch len(exact) {
		case 0:
			return nil, apperror.NotFound("portfolio", username)
		case 1:
			results = exact
		default:
			return nil, apperror.Inconsistent(
				fmt.Sprintf("%d portfolios claim author %s", len(exact), username))
		}
	}

	rec := results[0]
	if rec.String("author") != username {
		// The index matched a record that does not belong to this user.
		return nil, apperror.NotFound("portfolio", username)
	}

	return &StudentPortfolio{inv: inv, rec: rec, pageSize: defaultPageSize}, nil
}

// CreateStudentPortfolio creates the portfolio package for username under
// the given university organization, going through the collision-retry
// protocol for the package name.
func CreateStudentPortfolio(ctx context.Context, inv catalog.Invoker, username, fullname, university string) (*StudentPortfolio, error) {
	rec, err := catalog.CreatePackage(ctx, inv, username+"profile", catalog.Params{
		"title":     fullname,
		"groups":    []catalog.Params{{"name": GroupStudents}},
		"owner_org": university,
		"author":    username,
	})
	if err != nil {
		return nil, fmt.Errorf("creating portfolio for %s: %w", username, err)
	}
	return LoadPortfolioByID(ctx, inv, rec.String("id"))
}

// ID returns the portfolio package id.
func (p *StudentPortfolio) ID() string { return p.rec.String("id") }

// Username returns the owning author's username.
func (p *StudentPortfolio) Username() string { return p.rec.String("author") }

// Title returns the portfolio's display title.
func (p *StudentPortfolio) Title() string { return p.rec.String("title") }

// UniversityID returns the id of the owning organization.
func (p *StudentPortfolio) UniversityID() string { return p.rec.String("owner_org") }

// University loads the owning organization.
func (p *StudentPortfolio) University(ctx context.Context) (*Organization, error) {
	return LoadOrganization(ctx, p.inv, p.UniversityID())
}

// Tags returns the aggregate tag set. It is never authored directly: it is
// recomputed by Reload as the union of all item tags.
func (p *StudentPortfolio) Tags() []string {
	return p.rec.TagNames()
}

// SetPageSize overrides the search page size used by Items. Values below 1
// are ignored.
func (p *StudentPortfolio) SetPageSize(size int) {
	if size > 0 {
		p.pageSize = size
	}
}

// Items returns every work item in the portfolio.
//
// The catalog search is paginated, so pages are accumulated until the
// reported total is reached. The accumulated set is then re-filtered by
// exact author equality: the search index scopes fuzzily (by organization,
// by tokenized author) and another client could have forged the
// association, so exact equality is the trust boundary, not the index.
func (p *StudentPortfolio) Items(ctx context.Context) ([]*PortfolioItem, error) {
	query := fmt.Sprintf("author:%q AND groups:%s", p.Username(), GroupStudentsWork)

	var fetched []catalog.Record
	for start := 0; ; start += p.pageSize {
		res, err := p.inv.Call(ctx, "package_search", catalog.Params{
			"q":     query,
			"start": start,
			"rows":  p.pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning items for %s: %w", p.Username(), err)
		}
		fetched = append(fetched, res.Records("results")...)
		if len(fetched) >= res.Int("count") {
			break
		}
	}

	items := make([]*PortfolioItem, 0, len(fetched))
	for _, rec := range fetched {
		if rec.String("author") != p.Username() {
			continue
		}
		item, err := NewItemFromRecord(p, rec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// AddItem adds one work item to the portfolio. The package name is derived
// from username-title with collision retry, and the aggregate tags are
// recomputed afterwards.
func (p *StudentPortfolio) AddItem(ctx context.Context, title, description string, tags []string) (*PortfolioItem, error) {
	rec, err := catalog.CreatePackage(ctx, p.inv, p.Username()+"-"+title, catalog.Params{
		"title":     title,
		"owner_org": p.rec.Object("organization").String("name"),
		"author":    p.Username(),
		"notes":     description,
		"tags":      catalog.TagList(tags),
		"groups":    []catalog.Params{{"name": GroupStudentsWork}},
	})
	if err != nil {
		return nil, fmt.Errorf("adding item to portfolio %s: %w", p.ID(), err)
	}

	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return NewItemFromRecord(p, rec)
}

// Reload recomputes the aggregate tag set as the union of all current
// items' tags (duplicates collapsed) and writes it back to the portfolio
// record with a partial patch.
func (p *StudentPortfolio) Reload(ctx context.Context) error {
	items, err := p.Items(ctx)
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	var union []string
	for _, item := range items {
		for _, tag := range item.Tags() {
			if !seen[tag] {
				seen[tag] = true
				union = append(union, tag)
			}
		}
	}
	sort.Strings(union)

	rec, err := p.inv.Call(ctx, "package_patch", catalog.Params{
		"id":   p.ID(),
		"tags": catalog.TagList(union),
	})
	if err != nil {
		return fmt.Errorf("reloading portfolio %s: %w", p.ID(), err)
	}
	p.rec = rec
	return nil
}

// DeleteAll is intentionally unimplemented.
func (p *StudentPortfolio) DeleteAll(context.Context) error {
	return fmt.Errorf("portfolio delete: %w", errors.ErrUnsupported)
}

// ChangeUniversity is intentionally unimplemented: moving every item to a
// new owning organization is not supported.
func (p *StudentPortfolio) ChangeUniversity(context.Context, string) error {
	return fmt.Errorf("portfolio change university: %w", errors.ErrUnsupported)
}
