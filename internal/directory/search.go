package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/catalog"
)

// maxSearchRows is the catalog-imposed ceiling on one search page.
const maxSearchRows = 1000

// Search builds queries for the catalog's full-text/faceted search and
// post-processes the results into stable response shapes.
type Search struct {
	inv catalog.Invoker
}

// NewSearch creates a search facade over the given catalog session.
func NewSearch(inv catalog.Invoker) *Search {
	return &Search{inv: inv}
}

// StudentResults is the page returned by Students.
type StudentResults struct {
	Total   int
	Results []catalog.Record
}

// Students searches for student portfolios by tags and universities.
//
// The query is scoped to the students group; tags and universities each
// become an OR-group ANDed onto it. Every result record gets its tags
// partitioned into tags_matched (intersection with the requested tags) and
// tags_unmatched (the rest), so callers can render why a result matched.
//
// start/rows page through the results; rows above the catalog's ceiling of
// 1000 fail fast before any network call.
func (s *Search) Students(ctx context.Context, tags, universities []string, start, rows int) (*StudentResults, error) {
	if rows > maxSearchRows {
		return nil, apperror.ValidationFailed("rows",
			fmt.Sprintf("rows must be %d or less", maxSearchRows))
	}

	query := buildQuery(GroupStudents, tags, universities)
	res, err := s.inv.Call(ctx, "package_search", catalog.Params{
		"q":     query,
		"start": start,
		"rows":  rows,
	})
	if err != nil {
		return nil, err
	}

	results := res.Records("results")
	for _, rec := range results {
		matched, unmatched := partitionTags(rec.TagNames(), tags)
		rec["tags_matched"] = matched
		rec["tags_unmatched"] = unmatched
	}

	projected, err := catalog.Select(results,
		[]string{"title", "name", "tags_matched", "tags_unmatched"})
	if err != nil {
		return nil, err
	}

	return &StudentResults{
		Total:   res.Int("count"),
		Results: projected,
	}, nil
}

// TopTags returns the most used tags in descending order of occurrence.
// Ties keep the catalog's native facet order. Each entry is projected to
// {count, name}.
func (s *Search) TopTags(ctx context.Context, limit int) ([]catalog.Record, error) {
	res, err := s.inv.Call(ctx, "package_search", catalog.Params{
		"facet.field": []string{"tags"},
		"facet.limit": limit,
	})
	if err != nil {
		return nil, err
	}

	items := res.Object("search_facets").Object("tags").Records("items")
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Int("count") > items[j].Int("count")
	})
	if len(items) > limit {
		items = items[:limit]
	}

	return catalog.Select(items, []string{"count", "name"})
}

// TagsList returns every tag name known to the catalog.
func (s *Search) TagsList(ctx context.Context) ([]string, error) {
	res, err := s.inv.Call(ctx, "tag_list", nil)
	if err != nil {
		return nil, err
	}
	return res.StringList("results"), nil
}

// UniversityList returns all organizations classified as universities,
// projected to {name, title}.
func (s *Search) UniversityList(ctx context.Context) ([]catalog.Record, error) {
	res, err := s.inv.Call(ctx, "organization_list", catalog.Params{
		"all_fields":     true,
		"include_extras": true,
	})
	if err != nil {
		return nil, err
	}

	var universities []catalog.Record
	for _, org := range res.Records("results") {
		if category, ok := org.ExtraValue(categoryKey); ok && category == categoryUniversity {
			universities = append(universities, org)
		}
	}

	return catalog.SelectAs(universities, map[string]string{
		"name":         "name",
		"display_name": "title",
	})
}

// buildQuery produces the catalog's query mini-language:
//
//	groups:<group> [AND tags:("t1" OR "t2")] [AND organization:(o1 OR o2)]
//
// The string is passed verbatim to the catalog's parser, which is
// whitespace- and operator-sensitive, so the quoting here is load-bearing.
func buildQuery(group string, tags, organizations []string) string {
	var b strings.Builder
	b.WriteString("groups:")
	b.WriteString(group)

	if len(tags) > 0 {
		quoted := make([]string, len(tags))
		for i, tag := range tags {
			quoted[i] = `"` + tag + `"`
		}
		b.WriteString(" AND tags:(")
		b.WriteString(strings.Join(quoted, " OR "))
		b.WriteString(")")
	}
	if len(organizations) > 0 {
		b.WriteString(" AND organization:(")
		b.WriteString(strings.Join(organizations, " OR "))
		b.WriteString(")")
	}

	return b.String()
}

// partitionTags splits have into the part requested by the query and the
// part that was not.
func partitionTags(have, requested []string) (matched, unmatched []string) {
	requestedSet := make(map[string]bool, len(requested))
	for _, tag := range requested {
		requestedSet[tag] = true
	}
	matched = []string{}
	unmatched = []string{}
	for _, tag := range have {
		if requestedSet[tag] {
			matched = append(matched, tag)
		} else {
			unmatched = append(unmatched, tag)
		}
	}
	return matched, unmatched
}
