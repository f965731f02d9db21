package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/studentfolio/studentfolio/internal/apperror"
)

// createRetries bounds the collision-retry loop. Benign concurrent
// collisions get a fresh random suffix and another attempt; anything more
// persistent is reported as a URL conflict instead of retrying forever.
const createRetries = 3

// urlTakenMessage is the catalog's validation message for a package name
// collision.
const urlTakenMessage = "That URL is already in use."

// CreatePackage creates a catalog package under a name derived from the
// desired human name, retrying on name collisions.
//
// The name is normalized with Slug and stamped into data["name"]. When the
// catalog answers with a "URL already in use" validation failure, a fresh
// random suffix is appended to the desired name and the creation retried,
// up to createRetries attempts. Exhausting the attempts yields
// apperror.ErrURLConflict carrying the last attempted name. Any other
// error aborts immediately.
//
// Both student portfolios and portfolio items go through this protocol:
// they are both catalog packages and both need a globally-unique name that
// two users may race for.
func CreatePackage(ctx context.Context, inv Invoker, name string, data Params) (Record, error) {
	url := Slug(name)
	for range createRetries {
		data["name"] = url
		rec, err := inv.Call(ctx, "package_create", data)
		if err == nil {
			return rec, nil
		}
		if isURLTaken(err) {
			url = Slug(name + "_" + uuid.NewString())
			continue
		}
		return nil, err
	}
	return nil, apperror.URLConflict(url)
}

// isURLTaken reports whether err is the catalog's name-collision signal.
func isURLTaken(err error) bool {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
		return false
	}
	return appErr.Field == "name" && strings.Contains(appErr.Message, "already in use")
}
