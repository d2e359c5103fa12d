package config

import (
	"net"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSNValue builds the MySQL DSN, preferring an explicit dsn.
func (c DatabaseRuntimeConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}

	m := mysql.NewConfig()
	m.Net = "tcp"
	m.Addr = net.JoinHostPort(orDefault(c.Host, defaultDBHost), strconv.Itoa(orDefaultInt(c.Port, defaultDBPort)))
	m.User = orDefault(c.User, defaultDBUser)
	m.Passwd = strings.TrimSpace(c.Password)
	m.DBName = orDefault(c.Name, defaultDBName)
	m.ParseTime = c.ParseTime
	if loc, err := time.LoadLocation(orDefault(c.Loc, defaultDBLoc)); err == nil {
		m.Loc = loc
	}
	m.Params = map[string]string{"charset": orDefault(c.Charset, defaultDBCharset)}
	for key, value := range c.Params {
		if k, v := strings.TrimSpace(key), strings.TrimSpace(value); k != "" && v != "" {
			m.Params[k] = v
		}
	}
	return m.FormatDSN()
}

// URLValue builds the redis:// URL, preferring an explicit url.
func (c RedisRuntimeConfig) URLValue() string {
	if u := normalizeRedisRawURL(c.URL); u != "" {
		return u
	}

	db := c.DB
	if db < 0 {
		db = defaultRedisDB
	}
	u := &neturl.URL{
		Scheme: redisScheme(c.Scheme, c.TLS),
		Host:   net.JoinHostPort(orDefault(c.Host, defaultRedisHost), strconv.Itoa(orDefaultInt(c.Port, defaultRedisPort))),
		Path:   "/" + strconv.Itoa(db),
	}
	if user, pass := strings.TrimSpace(c.Username), strings.TrimSpace(c.Password); pass != "" {
		u.User = neturl.UserPassword(user, pass)
	} else if user != "" {
		u.User = neturl.User(user)
	}

	query := neturl.Values{}
	for key, value := range c.Params {
		if k, v := strings.TrimSpace(key), strings.TrimSpace(value); k != "" && v != "" {
			query.Set(k, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func redisScheme(scheme string, tls bool) string {
	switch s := strings.ToLower(strings.TrimSpace(scheme)); {
	case s == "redis" || s == "rediss":
		return s
	case tls:
		return "rediss"
	default:
		return "redis"
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
