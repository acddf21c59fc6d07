package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUserExists is returned by CreateUser when the username already has a
// credential.
var ErrUserExists = errors.New("user already exists")

// ErrUserNotFound is returned by DeleteUser for unknown usernames.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidUsername rejects usernames the credential scheme cannot encode
// unambiguously.
var ErrInvalidUsername = errors.New("invalid username")

// ValidateUsername rejects names that would break the "auth/<user>_<pass>"
// key scheme or the virtual path layout. Underscores are refused because the
// key format cannot tell where the username ends and the password begins.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: empty", ErrInvalidUsername)
	case strings.ContainsAny(username, "_/\\"):
		return fmt.Errorf("%w: %q must not contain '_', '/' or '\\'", ErrInvalidUsername, username)
	default:
		return nil
	}
}

// CreateUser writes the credential probe key for a new user and provisions
// the home tree.
func (a *Authenticator) CreateUser(ctx context.Context, username, password string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	existing, err := a.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to check existing users: %w", err)
	}
	for _, u := range existing {
		if u == username {
			return fmt.Errorf("%w: %s", ErrUserExists, username)
		}
	}

	key := CredentialKey(username, password)
	if err := a.store.Put(ctx, key, []byte("credential for "+username), ""); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	return a.ProvisionHome(ctx, username)
}

// DeleteUser removes every credential key belonging to the username. The
// user's files stay in place.
func (a *Authenticator) DeleteUser(ctx context.Context, username string) error {
	objects, err := a.store.List(ctx, CredentialPrefix+username+"_")
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	if len(objects) == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	for _, obj := range objects {
		if err := a.store.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("failed to delete credential %s: %w", obj.Key, err)
		}
	}
	return nil
}

// ListUsers returns the usernames that have credential keys, sorted and
// de-duplicated. The username is everything before the first underscore in
// the key (ValidateUsername keeps underscores out of usernames, so the split
// is unambiguous for users created by this tool; passwords may contain
// underscores freely).
func (a *Authenticator) ListUsers(ctx context.Context) ([]string, error) {
	objects, err := a.store.List(ctx, CredentialPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	seen := make(map[string]struct{})
	for _, obj := range objects {
		rest := strings.TrimPrefix(obj.Key, CredentialPrefix)
		i := strings.Index(rest, "_")
		if i <= 0 {
			continue
		}
		seen[rest[:i]] = struct{}{}
	}

	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}
