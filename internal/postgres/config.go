package postgres

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config describes how to reach the database and which channel to listen on.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Channel  string

	ConnectTimeout time.Duration
	// DialAttempts bounds the retries performed by a single Dial call.
	DialAttempts uint
}

// Validate reports the first missing required setting.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("database host is required")
	case c.Database == "":
		return errors.New("database name is required")
	case c.User == "":
		return errors.New("database user is required")
	case c.Password == "":
		return errors.New("database password is required")
	case c.Channel == "":
		return errors.New("notification channel is required")
	}
	return nil
}

// ConnString renders the config as a postgres URL.
func (c Config) ConnString() string {
	host := c.Host
	if c.Port > 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   host,
		Path:   "/" + c.Database,
	}
	if c.ConnectTimeout > 0 {
		q := url.Values{}
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Target is the loggable form of the connection target; it never contains the password.
func (c Config) Target() string {
	return fmt.Sprintf("%s@%s/%s", c.User, c.Host, c.Database)
}
