// Package backend opens driver sessions from configuration. It is the only
// place that knows every backend implementation.
package backend

import (
	"fmt"
	"strings"

	"github.com/oriys/fmidb/internal/config"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/db/oracle"
	"github.com/oriys/fmidb/internal/db/postgres"
	"github.com/oriys/fmidb/internal/db/sqldb"
	"github.com/oriys/fmidb/internal/rowcodec"
)

// Driver names accepted in DatabaseConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverOracle   = "oracle"
	DriverMySQL    = sqldb.DriverMySQL
	DriverSQLite   = sqldb.DriverSQLite
)

// CodecOptions turns the codec section into session options. An invalid
// date mask is reported here, before any session exists.
func CodecOptions(c config.CodecConfig) ([]db.Option, error) {
	var opts []db.Option
	if c.DateMask != "" {
		mask, err := rowcodec.ParseDateMask(c.DateMask)
		if err != nil {
			return nil, err
		}
		opts = append(opts, db.WithDateMask(mask))
	}
	if c.UnknownPolicy != "" {
		policy, err := rowcodec.ParseUnknownPolicy(c.UnknownPolicy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, db.WithUnknownPolicy(policy))
	}
	return opts, nil
}

// Open returns a disconnected session for cfg. Credentials are resolved
// through lookupEnv (os.LookupEnv when nil).
func Open(cfg config.DatabaseConfig, lookupEnv func(string) (string, bool), opts ...db.Option) (db.Session, error) {
	creds, err := cfg.Credentials(lookupEnv)
	if err != nil {
		return nil, err
	}
	return New(cfg.Driver, creds, opts...)
}

// New returns a disconnected session of the named driver.
func New(driver string, creds db.Credentials, opts ...db.Option) (db.Session, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres, "postgresql", "pgx":
		return postgres.New(creds, opts...), nil
	case DriverOracle:
		return oracle.New(creds, opts...), nil
	case DriverMySQL, DriverSQLite:
		return sqldb.New(strings.ToLower(driver), creds, opts...), nil
	case "":
		return nil, fmt.Errorf("backend: no driver configured for %s", creds.Database)
	default:
		if registered(driver) {
			return sqldb.New(driver, creds, opts...), nil
		}
		return nil, fmt.Errorf("backend: unknown driver %q", driver)
	}
}
