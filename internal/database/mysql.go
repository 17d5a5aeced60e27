package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig())
}

// buildMySQLDSN renders a driver DSN with parseTime on and timestamps in UTC, so token
// ages compare the same way on every backend. Extra options go through the driver's
// own parser and are rejected when invalid.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	base := mysqldriver.NewConfig()
	base.User = cfg.User
	base.Passwd = cfg.Password
	base.Net = "tcp"
	base.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	base.DBName = cfg.Name
	base.ParseTime = true
	base.Loc = time.UTC
	base.Params = map[string]string{"charset": "utf8mb4"}

	dsn := base.FormatDSN()
	if len(cfg.Options) == 0 {
		return dsn, nil
	}

	keys := make([]string, 0, len(cfg.Options))
	for key := range cfg.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	opts := make([]string, 0, len(keys))
	for _, key := range keys {
		opts = append(opts, key+"="+url.QueryEscape(cfg.Options[key]))
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	parsed, err := mysqldriver.ParseDSN(dsn + sep + strings.Join(opts, "&"))
	if err != nil {
		return "", fmt.Errorf("mysql configuration: %w", err)
	}
	return parsed.FormatDSN(), nil
}
