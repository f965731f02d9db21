// Package directory maps catalog primitives onto the portfolio domain.
//
// The catalog natively stores packages, organizations, groups, tags and
// users; this package re-purposes them: a student's portfolio is a package
// in the "students" group, each piece of their work is a package in the
// "students-work" group, and organizations stand in for universities and
// companies (told apart by a Category metadata pair).
//
// The catalog knows nothing about these rules, so this layer enforces the
// invariants itself: exactly one portfolio per author, globally unique
// human-chosen names under concurrent creation (via the collision-retry
// protocol), and aggregate portfolio tags recomputed as the union of all
// item tags. Because the catalog is multi-writer and offers no isolation,
// multi-record invariants are checked read-verify-write: a race that slips
// through is detected on the next read (apperror.ErrInconsistent), never
// silently repaired.
package directory

// Group names scoping this application's records inside the shared catalog.
const (
	GroupStudents     = "students"
	GroupStudentsWork = "students-work"
)

// Category metadata pair classifying organizations.
const (
	categoryKey        = "Category"
	categoryUniversity = "University"
	categoryCompany    = "Company"
)
