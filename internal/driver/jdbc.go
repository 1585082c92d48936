package driver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
)

// defaultJDBCCommand — консольный JDBC-клиент sqlline; запрос идёт на stdin.
const defaultJDBCCommand = `java -cp {jars} sqlline.SqlLine -d {driver} -u {uri} -n {user} -p {password} --silent=true --outputformat=csv`

// JDBCProfile — описание JDBC-системы: класс драйвера и допустимые свойства.
type JDBCProfile struct {
	// Name — имя продукта, оно же каноническое имя в реестре.
	Name string

	// DriverClass — Java-класс драйвера.
	DriverClass string

	// Properties — свойства из секции конфигурации, которые передаются драйверу.
	Properties []string

	Aliases []string
}

// jdbcRequiredKeys — ключи секции, без которых профиль не открывается.
var jdbcRequiredKeys = []string{"uri", "jars", "user"}

var jdbcProfiles = []JDBCProfile{
	{
		Name:        "apache derby",
		DriverClass: "org.apache.derby.jdbc.EmbeddedDriver",
		Properties:  []string{"password", "create", "logDevice"},
		Aliases:     []string{"derby"},
	},
	{
		Name:        "apache hive",
		DriverClass: "org.apache.hive.jdbc.HiveDriver",
		Properties:  []string{"password"},
		Aliases:     []string{"hive"},
	},
	{
		Name:        "h2",
		DriverClass: "org.h2.Driver",
		Properties:  []string{"password"},
	},
	{
		Name:        "hsqldb",
		DriverClass: "org.hsqldb.jdbc.JDBCDriver",
		Properties:  []string{"password"},
	},
	{
		Name:        "monetdblite-java",
		DriverClass: "nl.cwi.monetdb.jdbc.MonetDriver",
	},
}

// JDBCDriver — адаптер JDBC-систем через внешний Java-клиент.
//
// В URI подставляется {db}. Свойства, не входящие в профиль, отбрасываются;
// user и password передаются всегда. Время — wall clock процесса.
type JDBCDriver struct {
	Profile JDBCProfile
}

func (d *JDBCDriver) Name() string { return d.Profile.Name }

func (d *JDBCDriver) Open(_ context.Context, target Target) (Session, error) {
	if err := d.validate(target); err != nil {
		return nil, connectionError(d.Name(), err)
	}

	target.URI = strings.NewReplacer("{db}", target.DB, "{database}", target.DB).Replace(target.URI)

	return openCLI(cliConfig{
		Backend: d.Name(),
		Command: commandOr(target.Command, defaultJDBCCommand),
		Target:  target,
		Stdin:   jdbcInput,
		Parse:   parseJDBCOutput,
		Vars: map[string]string{
			"driver":     d.Profile.DriverClass,
			"properties": d.properties(target),
		},
	})
}

func (d *JDBCDriver) validate(target Target) error {
	present := map[string]bool{
		"uri":  target.URI != "",
		"jars": len(target.Jars) > 0,
		"user": target.User != "",
	}
	for _, key := range jdbcRequiredKeys {
		if !present[key] {
			return fmt.Errorf("configuration key %q not set for %s", key, d.Name())
		}
	}
	return nil
}

// properties собирает свойства профиля в виде k=v;k=v (ключи по алфавиту).
func (d *JDBCDriver) properties(target Target) string {
	props := make(map[string]string)
	for _, key := range d.Profile.Properties {
		if v, ok := target.Properties[key]; ok {
			props[key] = v
		}
	}
	props["user"] = target.User
	if target.Password != "" {
		props["password"] = target.Password
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + props[k]
	}
	return strings.Join(parts, ";")
}

func jdbcInput(query string) string {
	query = strings.TrimSpace(query)
	if !strings.HasSuffix(query, ";") {
		query += ";"
	}
	return query + "\n!quit\n"
}

// parseJDBCOutput ищет сообщение об ошибке sqlline. Код выхода sqlline
// относится к завершающему !quit, поэтому ошибка запроса видна только в выводе.
func parseJDBCOutput(out []byte, wall float64) (Measurement, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "Error:") {
			msg := strings.TrimSpace(strings.TrimPrefix(line, "Error:"))
			return Measurement{}, &BackendError{Kind: ErrExecution, Message: msg}
		}
	}
	return Measurement{Elapsed: wall, Fingerprint: ""}, nil
}
