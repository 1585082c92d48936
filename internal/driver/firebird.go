package driver

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/nakagami/firebirdsql"
)

// FirebirdDriver — нативный адаптер Firebird (nakagami/firebirdsql).
//
// Без DSN строка собирается как user:password@host[:port]/<dbfarm>/<db>.
type FirebirdDriver struct{}

func (d *FirebirdDriver) Name() string { return "firebird" }

func (d *FirebirdDriver) Open(ctx context.Context, target Target) (Session, error) {
	if err := checkDSNDatabase(d.Name(), target); err != nil {
		return nil, err
	}

	db, err := sql.Open("firebirdsql", firebirdDSN(target))
	if err != nil {
		return nil, connectionError(d.Name(), err)
	}

	s, err := openSQL(ctx, d.Name(), db, target.Timeout)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func firebirdDSN(target Target) string {
	if target.DSN != "" {
		return target.DSN
	}

	host := target.Host
	if host == "" {
		host = "localhost"
	}
	if target.Port != 0 {
		host = net.JoinHostPort(host, strconv.Itoa(target.Port))
	}

	path := target.DB
	if target.DBFarm != "" {
		path = target.DBFarm + "/" + target.DB
	}

	user := url.UserPassword(target.User, target.Password).String()
	return fmt.Sprintf("%s@%s/%s", user, host, path)
}
