package directory

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"iter"
	"math/big"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/catalog"
)

// passwordLength is the size of the generated catalog password. The
// catalog insists on a password at creation time even though this system
// never logs in with it (sessions reuse the user's API key instead), so
// it is generated with high entropy and immediately forgotten.
const passwordLength = 256

// passwordAlphabet is every printable ASCII character except whitespace.
const passwordAlphabet = "!\"#$%&'()*+,-./0123456789:;<=>?@" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`" +
	"abcdefghijklmnopqrstuvwxyz{|}~"

// User wraps a catalog user record.
//
// Construction goes through the administrator session (the only session
// allowed to look up arbitrary users); all subsequent operations performed
// "as" the user run on a personal session derived from the API key stored
// on their record.
type User struct {
	admin  catalog.Invoker
	inv    catalog.Invoker
	rec    catalog.Record
	search *Search
}

// LoadUser fetches a user by id (or username) via the administrator
// session and derives their personal session.
func LoadUser(ctx context.Context, admin catalog.Invoker, id string) (*User, error) {
	rec, err := admin.Call(ctx, "user_show", catalog.Params{"id": id})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.UserNotFound(id)
		}
		return nil, fmt.Errorf("loading user %s: %w", id, err)
	}

	personal := admin.WithAPIKey(rec.String("apikey"))
	return &User{
		admin:  admin,
		inv:    personal,
		rec:    rec,
		search: NewSearch(personal),
	}, nil
}

// CreateUser creates a catalog user through the administrator session.
//
// The generated password satisfies the catalog's requirement but is never
// surfaced or stored; the API key on the created record is the real
// credential. A rejected creation (typically a duplicate login) yields
// apperror.ErrUserCreate.
func CreateUser(ctx context.Context, admin catalog.Invoker, login, email, fullname, about string) (*User, error) {
	password, err := generatePassword(passwordLength)
	if err != nil {
		return nil, fmt.Errorf("generating password: %w", err)
	}

	rec, err := admin.Call(ctx, "user_create", catalog.Params{
		"name":     login,
		"email":    email,
		"fullname": fullname,
		"password": password,
		"about":    about,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return nil, apperror.UserCreate(fmt.Sprintf("cannot create user %s: %v", login, err))
		}
		return nil, err
	}

	return LoadUser(ctx, admin, rec.String("id"))
}

// generatePassword draws length characters uniformly from the printable
// non-whitespace alphabet using crypto/rand.
func generatePassword(length int) (string, error) {
	alphabetSize := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}

// ID returns the catalog user id.
func (u *User) ID() string { return u.rec.String("id") }

// Username returns the immutable catalog-unique login name.
func (u *User) Username() string { return u.rec.String("name") }

// Fullname returns the display name.
func (u *User) Fullname() string { return u.rec.String("fullname") }

// DisplayName returns the catalog's computed display name (falls back to
// the username when no fullname is set).
func (u *User) DisplayName() string { return u.rec.String("display_name") }

// About returns the profile text.
func (u *User) About() string { return u.rec.String("about") }

// Email returns the user's email address.
func (u *User) Email() string { return u.rec.String("email") }

// Session exposes the user's personal catalog session, for operations the
// presentation layer performs directly as this user (e.g. creating an
// organization).
func (u *User) Session() catalog.Invoker { return u.inv }

// SetFullname updates the display name.
func (u *User) SetFullname(ctx context.Context, value string) error {
	return u.update(ctx, "fullname", value)
}

// SetAbout updates the profile text.
func (u *User) SetAbout(ctx context.Context, value string) error {
	return u.update(ctx, "about", value)
}

// SetEmail updates the email address.
func (u *User) SetEmail(ctx context.Context, value string) error {
	return u.update(ctx, "email", value)
}

// update performs a read-modify-write: re-fetch the current record, set
// one field, submit the whole record. A concurrent change to another field
// between the read and the write is lost. That race is documented and
// accepted, not masked.
func (u *User) update(ctx context.Context, key string, value any) error {
	rec, err := u.inv.Call(ctx, "user_show", catalog.Params{"id": u.ID()})
	if err != nil {
		return fmt.Errorf("refreshing user %s: %w", u.ID(), err)
	}
	rec[key] = value
	updated, err := u.inv.Call(ctx, "user_update", catalog.Params(rec))
	if err != nil {
		return fmt.Errorf("updating user %s: %w", u.ID(), err)
	}
	u.rec = updated
	return nil
}

// Delete soft-deletes the user: the catalog flags the record as deleted
// but retains it.
func (u *User) Delete(ctx context.Context) error {
	_, err := u.admin.Call(ctx, "user_delete", catalog.Params{"id": u.ID()})
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", u.ID(), err)
	}
	return nil
}

// StudentPortfolio looks up this user's portfolio. It is a live lookup,
// not a cached flag: zero matches yield apperror.ErrNotFound, duplicate
// matches apperror.ErrInconsistent.
func (u *User) StudentPortfolio(ctx context.Context) (*StudentPortfolio, error) {
	return LoadPortfolioByUsername(ctx, u.inv, u.Username())
}

// IsStudent reports whether the user has a portfolio. Only the not-found
// case maps to false; any other failure is returned.
func (u *User) IsStudent(ctx context.Context) (bool, error) {
	_, err := u.StudentPortfolio(ctx)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateStudentProfile turns the user into a student: it joins them to the
// students groups and creates their portfolio under the given university.
//
// Membership in the university organization is a precondition, looked up
// through the user's own memberships, not a side effect of this call.
// With university == "" the user's first university membership is used.
// No usable membership yields apperror.ErrForbidden.
//
// Idempotent: a user who already has a portfolio gets the existing one.
func (u *User) CreateStudentProfile(ctx context.Context, university string) (*StudentPortfolio, error) {
	existing, err := u.StudentPortfolio(ctx)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	target, err := u.findUniversity(ctx, university)
	if err != nil {
		return nil, apperror.Forbidden(
			fmt.Sprintf("user %s has no usable university membership: %v", u.Username(), err))
	}

	if err := u.AddToGroup(ctx, GroupStudents); err != nil {
		return nil, err
	}
	if err := u.AddToGroup(ctx, GroupStudentsWork); err != nil {
		return nil, err
	}

	return CreateStudentPortfolio(ctx, u.inv, u.Username(), u.DisplayName(), target.ID())
}

// findUniversity picks the membership to attach the portfolio to.
func (u *User) findUniversity(ctx context.Context, name string) (*Organization, error) {
	for org, err := range u.Universities(ctx) {
		if err != nil {
			return nil, err
		}
		if name == "" || org.Name() == name {
			return org, nil
		}
	}
	return nil, fmt.Errorf("no university membership matching %q", name)
}

// AddToOrganization makes the user an editor member of the organization.
// Runs on the administrator session: plain users cannot add themselves.
func (u *User) AddToOrganization(ctx context.Context, organization string) error {
	_, err := u.admin.Call(ctx, "organization_member_create", catalog.Params{
		"id":       organization,
		"username": u.ID(),
		"role":     "editor",
	})
	if err != nil {
		return fmt.Errorf("adding user %s to organization %s: %w", u.Username(), organization, err)
	}
	return nil
}

// AddToGroup joins the user to a catalog group.
func (u *User) AddToGroup(ctx context.Context, group string) error {
	_, err := u.admin.Call(ctx, "group_member_create", catalog.Params{
		"id":       group,
		"username": u.ID(),
		"role":     "member",
	})
	if err != nil {
		return fmt.Errorf("adding user %s to group %s: %w", u.Username(), group, err)
	}
	return nil
}

// MemberOf lists the organizations the user can read, each reconstructed
// as a full Organization (one lookup per membership).
func (u *User) MemberOf(ctx context.Context) ([]*Organization, error) {
	return u.organizationsFor(ctx, "read")
}

// AdminOf lists the organizations the user administers.
func (u *User) AdminOf(ctx context.Context) ([]*Organization, error) {
	return u.organizationsFor(ctx, "admin")
}

func (u *User) organizationsFor(ctx context.Context, permission string) ([]*Organization, error) {
	res, err := u.inv.Call(ctx, "organization_list_for_user", catalog.Params{
		"permission": permission,
	})
	if err != nil {
		return nil, fmt.Errorf("listing organizations for %s: %w", u.Username(), err)
	}

	var orgs []*Organization
	for _, rec := range res.Records("results") {
		org, err := LoadOrganization(ctx, u.inv, rec.String("id"))
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

// Universities yields the user's memberships restricted to organizations
// that appear in the global university list. The sequence is lazy and
// single-pass: nothing is fetched until the first pull, and the underlying
// lookups are not repeated on early exit.
func (u *User) Universities(ctx context.Context) iter.Seq2[*Organization, error] {
	return func(yield func(*Organization, error) bool) {
		universities, err := u.search.UniversityList(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		names := make(map[string]bool, len(universities))
		for _, uni := range universities {
			names[uni.String("name")] = true
		}

		memberships, err := u.MemberOf(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, org := range memberships {
			if !names[org.Name()] {
				continue
			}
			if !yield(org, nil) {
				return
			}
		}
	}
}

// Companies is not implemented yet; company discovery goes through
// MemberOf for now.
func (u *User) Companies(context.Context) ([]*Organization, error) {
	return nil, fmt.Errorf("user companies: %w", errors.ErrUnsupported)
}
