// Package auth verifies user credentials against the object store and
// provisions home directories.
//
// Credentials live in the store itself as probe keys of the form
// "auth/<username>_<password>": authentication is a HEAD on that key. The
// scheme is intentionally simple and matches what operators already have in
// their buckets; it is not a place to keep secrets you care about, since
// passwords appear in key names and access logs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/pkg/events"
	"github.com/paperdrop/paperdrop/pkg/namespace"
	"github.com/paperdrop/paperdrop/pkg/store"
)

// CredentialPrefix is where credential probe keys live in the bucket.
const CredentialPrefix = "auth/"

// MarkerContentType is the content type directory markers are written with.
const MarkerContentType = "application/x-directory"

// Config configures the authenticator.
type Config struct {
	// Store is the backing object store.
	Store store.Store

	// UserBasePath is the bucket prefix user homes live under, for example
	// "users".
	UserBasePath string

	// DefaultSubdirs are provisioned inside each home with directory
	// markers. Defaults to invoices and ledgers.
	DefaultSubdirs []string

	// CreateDefaultSubdirs enables provisioning of DefaultSubdirs.
	CreateDefaultSubdirs bool

	// Bus receives directory-created events from provisioning. May be nil.
	Bus *events.Bus
}

// Authenticator validates passwords and provisions user homes.
type Authenticator struct {
	store          store.Store
	basePath       string
	defaultSubdirs []string
	provision      bool
	bus            *events.Bus
}

// New creates an authenticator.
func New(cfg Config) *Authenticator {
	subdirs := cfg.DefaultSubdirs
	if len(subdirs) == 0 {
		subdirs = []string{namespace.InvoicesDir, namespace.LedgersDir}
	}
	return &Authenticator{
		store:          cfg.Store,
		basePath:       strings.Trim(cfg.UserBasePath, "/"),
		defaultSubdirs: subdirs,
		provision:      cfg.CreateDefaultSubdirs,
		bus:            cfg.Bus,
	}
}

// CredentialKey returns the probe key for a username/password pair.
func CredentialKey(username, password string) string {
	return CredentialPrefix + username + "_" + password
}

// Authenticate checks a password by probing the credential key. A present
// key means success; a missing key means wrong credentials; any other store
// error is treated as failure and logged.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) bool {
	_, err := a.store.Head(ctx, CredentialKey(username, password))
	if err == nil {
		return true
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Error("credential probe failed", "user", username, "error", err)
	}
	return false
}

// ProvisionHome makes sure the user's home tree is usable. The home itself
// gets no marker (directories are virtual); when provisioning is enabled
// each default subdirectory gets a ".directory" marker so it shows up in
// listings even while empty. Existing markers are overwritten, which is
// harmless.
func (a *Authenticator) ProvisionHome(ctx context.Context, username string) error {
	if !a.provision {
		return nil
	}

	homePrefix := a.basePath + "/" + username
	for _, name := range a.defaultSubdirs {
		key := homePrefix + "/" + name + "/" + namespace.MarkerName
		body := fmt.Sprintf("Directory marker for %s folder", name)
		if err := a.store.Put(ctx, key, []byte(body), MarkerContentType); err != nil {
			return fmt.Errorf("failed to provision %s for user %s: %w", name, username, err)
		}
		a.bus.Publish(events.Event{
			Type: events.DirectoryCreated,
			User: username,
			Path: "/" + name,
			Key:  key,
		})
	}

	logger.Debug("provisioned home", "user", username, "subdirs", a.defaultSubdirs)
	return nil
}

// HomePrefix returns the object key prefix of a user's home.
func (a *Authenticator) HomePrefix(username string) string {
	return a.basePath + "/" + username
}
