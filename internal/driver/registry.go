package driver

import (
	"fmt"
	"sort"
	"strings"
)

// Registry — реестр адаптеров по имени бэкенда.
//
// Поиск регистронезависимый; алиасы ведут на каноническое имя.
type Registry struct {
	drivers map[string]Driver
	aliases map[string]string
}

// NewRegistry создаёт реестр со всеми встроенными адаптерами.
//
// Нативные: postgresql, mariadb, sqlite, firebird, clickhouse-native.
// CLI: monetdb (mclient), clickhouse (clickhouse client), actian (sql).
// JDBC-профили: apache derby, apache hive, h2, hsqldb, monetdblite-java.
func NewRegistry() *Registry {
	r := &Registry{
		drivers: make(map[string]Driver),
		aliases: make(map[string]string),
	}

	r.Register(&PostgresDriver{}, "postgres", "pgsql")
	r.Register(&MariaDBDriver{}, "mysql")
	r.Register(&SQLiteDriver{}, "sqlite3")
	r.Register(&FirebirdDriver{})
	r.Register(&ClickHouseNativeDriver{})
	r.Register(&MonetDBDriver{}, "mclient")
	r.Register(&ClickHouseCLIDriver{})
	r.Register(&ActianDriver{}, "vector", "ingres")

	for _, p := range jdbcProfiles {
		r.Register(&JDBCDriver{Profile: p}, p.Aliases...)
	}

	return r
}

// NewEmptyRegistry создаёт реестр без адаптеров (для тестов и встраивания).
func NewEmptyRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]Driver),
		aliases: make(map[string]string),
	}
}

// Register добавляет адаптер под его каноническим именем и алиасами.
func (r *Registry) Register(d Driver, aliases ...string) {
	name := normalize(d.Name())
	r.drivers[name] = d
	for _, a := range aliases {
		r.aliases[normalize(a)] = name
	}
}

// Get возвращает адаптер по имени dbms.
func (r *Registry) Get(dbms string) (Driver, error) {
	name := normalize(dbms)
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, dbms)
	}
	return d, nil
}

// Names возвращает канонические имена в алфавитном порядке.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases возвращает алиасы канонического имени в алфавитном порядке.
func (r *Registry) Aliases(name string) []string {
	name = normalize(name)
	var out []string
	for alias, canonical := range r.aliases {
		if canonical == name {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
