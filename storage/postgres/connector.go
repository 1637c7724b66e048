package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/poiesic/retailrag/core"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// tokenRefreshMargin is how close to expiry a cached token is replaced.
const tokenRefreshMargin = 5 * time.Minute

// iamScopes are requested for database login tokens.
var iamScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/alloydb.login",
}

// NewIAMTokenSource returns application default credentials wrapped so a
// cached token is reused until it is within five minutes of expiry.
func NewIAMTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	src, err := google.DefaultTokenSource(ctx, iamScopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: no default credentials: %v", core.ErrStoreUnavailable, err)
	}
	return oauth2.ReuseTokenSourceWithExpiry(nil, src, tokenRefreshMargin), nil
}

// StaticPassword wraps a fixed password as a token source.
func StaticPassword(password string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: password})
}

// iamConnector opens lib/pq connections whose password is a fresh access
// token. database/sql calls Connect for every new pooled connection, so a
// stale token is replaced before it is used.
type iamConnector struct {
	dsn    string // key=value form without password
	tokens oauth2.TokenSource
}

var _ driver.Connector = (*iamConnector)(nil)

func newIAMConnector(uri string, tokens oauth2.TokenSource) (*iamConnector, error) {
	dsn := uri
	if strings.HasPrefix(uri, "postgres://") || strings.HasPrefix(uri, "postgresql://") {
		parsed, err := pq.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid database uri: %w", err)
		}
		dsn = parsed
	}
	// Validate the base DSN once so configuration errors surface at startup.
	if _, err := pq.NewConnector(dsn); err != nil {
		return nil, fmt.Errorf("invalid database uri: %w", err)
	}
	return &iamConnector{dsn: dsn, tokens: tokens}, nil
}

// Connect fetches a token and dials with it as the password.
func (c *iamConnector) Connect(ctx context.Context) (driver.Conn, error) {
	dsn := c.dsn
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: fetching database token: %v", core.ErrStoreUnavailable, err)
		}
		dsn += " password=" + quoteDSNValue(tok.AccessToken)
	}
	conn, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	return conn.Connect(ctx)
}

// Driver returns the lib/pq driver.
func (c *iamConnector) Driver() driver.Driver {
	return &pq.Driver{}
}

// quoteDSNValue quotes a value for the key=value connection string format.
func quoteDSNValue(v string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

// withDatabase appends a dbname setting; later keys win in lib/pq DSNs.
func withDatabase(dsn, name string) string {
	return dsn + " dbname=" + quoteDSNValue(name)
}
