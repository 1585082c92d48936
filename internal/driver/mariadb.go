package driver

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

const defaultMariaDBPort = 3306

// MariaDBDriver — нативный адаптер MariaDB/MySQL (go-sql-driver/mysql).
type MariaDBDriver struct{}

func (d *MariaDBDriver) Name() string { return "mariadb" }

func (d *MariaDBDriver) Open(ctx context.Context, target Target) (Session, error) {
	cfg, err := mariadbConfig(target)
	if err != nil {
		return nil, connectionError(d.Name(), err)
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, connectionError(d.Name(), err)
	}

	s, err := openSQL(ctx, d.Name(), sql.OpenDB(connector), target.Timeout)
	if err != nil {
		return nil, err
	}
	s.message = mariadbMessage
	return s, nil
}

func mariadbConfig(target Target) (*mysql.Config, error) {
	if target.DSN != "" {
		cfg, err := mysql.ParseDSN(target.DSN)
		if err != nil {
			return nil, err
		}
		if target.DB != "" {
			cfg.DBName = target.DB
		}
		return cfg, nil
	}

	host := target.Host
	if host == "" {
		host = "localhost"
	}
	port := target.Port
	if port == 0 {
		port = defaultMariaDBPort
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.User = target.User
	cfg.Passwd = target.Password
	cfg.DBName = target.DB
	if target.Timeout > 0 {
		cfg.Timeout = target.Timeout
	}
	return cfg, nil
}

// mariadbMessage отдаёт текст сервера без кода ошибки.
func mariadbMessage(err error) string {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Message
	}
	return err.Error()
}
