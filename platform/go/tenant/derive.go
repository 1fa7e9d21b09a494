package tenant

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// DatabasePrefix namespaces every tenant database on the shared server.
const DatabasePrefix = "queuex"

// identifierPattern is the allow-list for anything interpolated into DDL.
// Identifiers cannot be parameterized, so this check is the injection defense.
var identifierPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// DatabaseName derives the physical database name for a company slug.
// Deterministic: the same slug always yields the same name, so a handle can be
// re-derived without consulting stored credentials.
func DatabaseName(slug string) string {
	return DatabasePrefix + "_" + toSnake(slug)
}

// BranchDatabaseName derives the database name for the branch-level variant.
func BranchDatabaseName(companySlug, branchSlug string) string {
	return DatabasePrefix + "_" + toSnake(companySlug) + "_" + toSnake(branchSlug)
}

// BranchKey builds the composite connection-cache key for a branch database.
func BranchKey(companySlug, branchSlug string) string {
	return companySlug + "_" + branchSlug
}

func toSnake(slug string) string {
	return strings.ReplaceAll(strings.ToLower(slug), "-", "_")
}

// ValidateIdentifier rejects any derived name that is not safe to quote into DDL.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("unsafe database identifier %q: must match ^[a-z0-9_]+$", name)
	}
	return nil
}

// Defaults holds the process-wide connection parameters the deriver combines
// with a derived database name. Sourced from configuration at startup.
type Defaults struct {
	Host     string
	Port     int
	User     string
	Password string
}

// DatabaseConfig is the full set of parameters needed to reach one database.
type DatabaseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DeriveConfig combines the defaults with the derived database name for a slug.
// It does not validate reachability.
func DeriveConfig(slug string, d Defaults) DatabaseConfig {
	return DatabaseConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: DatabaseName(slug),
		User:     d.User,
		Password: d.Password,
	}
}

// DeriveBranchConfig is the branch-level counterpart of DeriveConfig.
func DeriveBranchConfig(companySlug, branchSlug string, d Defaults) DatabaseConfig {
	cfg := DeriveConfig(companySlug, d)
	cfg.Database = BranchDatabaseName(companySlug, branchSlug)
	return cfg
}

// ConnString renders the pgx-compatible connection URL for the config.
func (c DatabaseConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// WithDatabase returns a copy of the config pointed at a different database.
// Used to reach the server's maintenance database for administrative DDL.
func (c DatabaseConfig) WithDatabase(name string) DatabaseConfig {
	c.Database = name
	return c
}
