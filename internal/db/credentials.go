package db

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Credentials identify one login. Empty User and Password with External set
// defer authentication to the client environment (e.g. an OS wallet).
type Credentials struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	External bool
	// DSN, when set, is used verbatim instead of the fields above.
	DSN string
}

// Validate checks that every field a password login needs is present.
func (c Credentials) Validate() error {
	if c.DSN != "" {
		return nil
	}
	if c.Database == "" {
		return fmt.Errorf("%w: empty database name", ErrConnectionFailed)
	}
	if c.External {
		return nil
	}
	switch {
	case c.User == "":
		return fmt.Errorf("%w: empty username", ErrConnectionFailed)
	case c.Password == "":
		return fmt.Errorf("%w: empty password", ErrConnectionFailed)
	}
	return nil
}

// Address returns host:port, or "" when no host is configured.
func (c Credentials) Address() string {
	if c.Host == "" {
		return ""
	}
	if c.Port == 0 {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Redacted describes the login without the password, for logs.
func (c Credentials) Redacted() string {
	if c.DSN != "" {
		if u, err := url.Parse(c.DSN); err == nil && u.User != nil {
			return u.Redacted()
		}
		return "dsn"
	}
	return fmt.Sprintf("%s/*@%s/%s", c.User, c.Address(), c.Database)
}
