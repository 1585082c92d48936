package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/squll/internal/domain"
	"github.com/shaiso/squll/internal/driver"
	"github.com/shaiso/squll/internal/engine"
)

// DefaultPath — файл конфигурации по умолчанию.
const DefaultPath = "squll.yaml"

// Default configuration values.
const (
	defaultBackoffBase   = 5 * time.Second
	defaultBackoffStep   = 5 * time.Second
	defaultBackoffMax    = 60 * time.Second
	defaultSubmitRetries = 3
)

// requiredKeys — ключи верхнего уровня, без которых воркер не стартует.
// ticket может быть заменён key; server не нужен при пакетном input.
var requiredKeys = []string{"server", "ticket", "bailout", "debug", "timeout"}

// Config — неизменяемая конфигурация процесса.
//
// Создаётся один раз через Load/Parse и передаётся по значению.
type Config struct {
	Server string
	Ticket string
	Key    string
	User   string
	Host   string

	// Timeout — таймаут одного выполнения запроса (0 — без таймаута).
	Timeout time.Duration

	// Bailout — сколько ошибок допускается до остановки; <= 0 — без ограничения.
	Bailout int

	Debug  bool
	Daemon bool
	Extras bool

	// Input — файл с массивом task для пакетного режима; Output — куда писать результаты.
	Input  string
	Output string

	MetricsAddr string
	AMQPURL     string

	KeepConnection bool
	AbortOnError   bool
	Substitution   engine.Mode

	Backoff       Backoff
	SubmitRetries int

	// DriverName — выбранная секция drivers.
	DriverName string
	Drivers    map[string]Section
}

// Backoff — параметры линейной задержки при отсутствии работы.
type Backoff struct {
	Base time.Duration
	Step time.Duration
	Max  time.Duration
}

// Section — секция drivers: бэкенд, база и параметры подключения.
type Section struct {
	DBMS       string            `yaml:"dbms"`
	DB         string            `yaml:"db"`
	Project    string            `yaml:"project"`
	Experiment string            `yaml:"experiment"`
	Runlength  int               `yaml:"runlength"`
	Repeat     int               `yaml:"repeat"`
	DSN        string            `yaml:"dsn"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	User       string            `yaml:"user"`
	Password   string            `yaml:"password"`
	DBFarm     string            `yaml:"dbfarm"`
	Command    string            `yaml:"command"`
	URI        string            `yaml:"uri"`
	Jars       string            `yaml:"jars"`
	Properties map[string]string `yaml:"properties"`
}

// DefaultRunlength — runlength секции, иначе repeat, иначе 0.
func (s Section) DefaultRunlength() int {
	if s.Runlength > 0 {
		return s.Runlength
	}
	return s.Repeat
}

// Overrides — значения флагов командной строки. nil — флаг не задан.
type Overrides struct {
	Driver  string
	Server  *string
	Ticket  *string
	Timeout *int
	Bailout *int
	Daemon  *bool
	Debug   *bool
	Input   *string
	Output  *string
}

// fileConfig — представление YAML-файла.
type fileConfig struct {
	Server         string             `yaml:"server"`
	Ticket         string             `yaml:"ticket"`
	Key            string             `yaml:"key"`
	User           string             `yaml:"user"`
	Host           string             `yaml:"host"`
	Timeout        int                `yaml:"timeout"`
	Bailout        int                `yaml:"bailout"`
	Debug          bool               `yaml:"debug"`
	Daemon         bool               `yaml:"daemon"`
	Extras         bool               `yaml:"extras"`
	Input          string             `yaml:"input"`
	Output         string             `yaml:"output"`
	MetricsAddr    string             `yaml:"metrics_addr"`
	AMQPURL        string             `yaml:"amqp_url"`
	KeepConnection *bool              `yaml:"keep_connection"`
	AbortOnError   bool               `yaml:"abort_on_error"`
	Substitution   string             `yaml:"substitution"`
	Backoff        fileBackoff        `yaml:"backoff"`
	SubmitRetries  int                `yaml:"submit_retries"`
	Driver         string             `yaml:"driver"`
	Drivers        map[string]Section `yaml:"drivers"`
}

// fileBackoff — значения в секундах.
type fileBackoff struct {
	Base int `yaml:"base"`
	Step int `yaml:"step"`
	Max  int `yaml:"max"`
}

// Load читает YAML-файл и применяет overrides.
func Load(path string, ov Overrides) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, keyError("file", err)
	}
	return Parse(data, ov)
}

// Parse разбирает YAML и применяет overrides.
func Parse(data []byte, ov Overrides) (Config, error) {
	var present map[string]any
	if err := yaml.Unmarshal(data, &present); err != nil {
		return Config{}, keyError("file", fmt.Errorf("%w: %v", ErrInvalidValue, err))
	}

	if present == nil {
		present = map[string]any{}
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, keyError("file", fmt.Errorf("%w: %v", ErrInvalidValue, err))
	}

	applyOverrides(&fc, ov, present)

	if err := checkRequired(fc, present); err != nil {
		return Config{}, err
	}

	return build(fc)
}

func applyOverrides(fc *fileConfig, ov Overrides, present map[string]any) {
	set := func(key string) { present[key] = true }

	if ov.Driver != "" {
		fc.Driver = ov.Driver
	}
	if ov.Server != nil {
		fc.Server = *ov.Server
		set("server")
	}
	if ov.Ticket != nil {
		fc.Ticket = *ov.Ticket
		set("ticket")
	}
	if ov.Timeout != nil {
		fc.Timeout = *ov.Timeout
		set("timeout")
	}
	if ov.Bailout != nil {
		fc.Bailout = *ov.Bailout
		set("bailout")
	}
	if ov.Daemon != nil {
		fc.Daemon = *ov.Daemon
	}
	if ov.Debug != nil {
		fc.Debug = *ov.Debug
		set("debug")
	}
	if ov.Input != nil {
		fc.Input = *ov.Input
	}
	if ov.Output != nil {
		fc.Output = *ov.Output
	}
}

func checkRequired(fc fileConfig, present map[string]any) error {
	for _, key := range requiredKeys {
		if _, ok := present[key]; ok {
			continue
		}
		switch key {
		case "ticket":
			if _, ok := present["key"]; ok {
				continue
			}
		case "server":
			if fc.Input != "" {
				continue
			}
		}
		return keyError(key, ErrMissingKey)
	}
	return nil
}

func build(fc fileConfig) (Config, error) {
	if fc.Timeout < 0 {
		return Config{}, keyError("timeout", fmt.Errorf("%w: %d", ErrInvalidValue, fc.Timeout))
	}

	mode, err := engine.ParseMode(fc.Substitution)
	if err != nil {
		return Config{}, keyError("substitution", err)
	}

	cfg := Config{
		Server:         strings.TrimRight(fc.Server, "/"),
		Ticket:         fc.Ticket,
		Key:            fc.Key,
		User:           fc.User,
		Host:           fc.Host,
		Timeout:        time.Duration(fc.Timeout) * time.Second,
		Bailout:        fc.Bailout,
		Debug:          fc.Debug,
		Daemon:         fc.Daemon,
		Extras:         fc.Extras,
		Input:          fc.Input,
		Output:         fc.Output,
		MetricsAddr:    fc.MetricsAddr,
		AMQPURL:        fc.AMQPURL,
		KeepConnection: fc.KeepConnection == nil || *fc.KeepConnection,
		AbortOnError:   fc.AbortOnError,
		Substitution:   mode,
		Backoff: Backoff{
			Base: secondsOr(fc.Backoff.Base, defaultBackoffBase),
			Step: secondsOr(fc.Backoff.Step, defaultBackoffStep),
			Max:  secondsOr(fc.Backoff.Max, defaultBackoffMax),
		},
		SubmitRetries: fc.SubmitRetries,
		Drivers:       fc.Drivers,
	}

	if cfg.Backoff.Max < cfg.Backoff.Base {
		return Config{}, keyError("backoff.max", fmt.Errorf("%w: max below base", ErrInvalidValue))
	}
	if cfg.SubmitRetries <= 0 {
		cfg.SubmitRetries = defaultSubmitRetries
	}
	if cfg.Host == "" {
		cfg.Host, _ = os.Hostname()
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("USER")
	}
	if cfg.Drivers == nil {
		cfg.Drivers = map[string]Section{}
	}

	name, err := selectDriver(fc.Driver, cfg.Drivers)
	if err != nil {
		return Config{}, err
	}
	cfg.DriverName = name

	return cfg, nil
}

// selectDriver выбирает секцию: явно заданную, либо единственную.
func selectDriver(name string, drivers map[string]Section) (string, error) {
	if name != "" {
		if _, ok := drivers[name]; !ok {
			return "", keyError("driver", fmt.Errorf("%w: %q", ErrUnknownDriver, name))
		}
		return name, nil
	}
	if len(drivers) == 1 {
		for n := range drivers {
			return n, nil
		}
	}
	return "", nil
}

func secondsOr(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

// Section возвращает выбранную секцию drivers (пустую, если не выбрана).
func (c Config) Section() Section {
	return c.Drivers[c.DriverName]
}

// SectionNames возвращает имена секций в алфавитном порядке.
func (c Config) SectionNames() []string {
	names := make([]string, 0, len(c.Drivers))
	for n := range c.Drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Identity возвращает идентичность воркера для запросов к серверу.
func (c Config) Identity() domain.Identity {
	s := c.Section()
	return domain.Identity{
		Ticket:     c.Ticket,
		Key:        c.Key,
		User:       c.User,
		Host:       c.Host,
		DBMS:       s.DBMS,
		DB:         s.DB,
		Project:    s.Project,
		Experiment: s.Experiment,
		Extras:     c.Extras,
	}
}

// Target строит параметры подключения для dbms/db task.
//
// Секция выбирается так: выбранная, если её dbms совпадает (или пуст),
// иначе первая по имени секция с тем же dbms. Таймаут task (секунды, > 0)
// имеет приоритет над конфигурационным.
func (c Config) Target(dbms, db string, taskTimeout int) driver.Target {
	s := c.sectionFor(dbms)

	timeout := c.Timeout
	if taskTimeout > 0 {
		timeout = time.Duration(taskTimeout) * time.Second
	}

	var jars []string
	for _, j := range strings.Split(s.Jars, ",") {
		if j = strings.TrimSpace(j); j != "" {
			jars = append(jars, j)
		}
	}

	if db == "" {
		db = s.DB
	}

	var dsnDB string
	if s.DSN != "" {
		dsnDB = s.DB
	}

	return driver.Target{
		DBMS:        dbms,
		DB:          db,
		DSN:         s.DSN,
		DSNDatabase: dsnDB,
		Host:        s.Host,
		Port:        s.Port,
		User:        s.User,
		Password:    s.Password,
		DBFarm:      s.DBFarm,
		Command:     s.Command,
		URI:         s.URI,
		Jars:        jars,
		Properties:  s.Properties,
		Timeout:     timeout,
	}
}

// DefaultRunlength — runlength секции для dbms task.
func (c Config) DefaultRunlength(dbms string) int {
	return c.sectionFor(dbms).DefaultRunlength()
}

func (c Config) sectionFor(dbms string) Section {
	selected := c.Section()
	if dbms == "" || selected.DBMS == "" || strings.EqualFold(selected.DBMS, dbms) {
		return selected
	}
	for _, name := range c.SectionNames() {
		if s := c.Drivers[name]; strings.EqualFold(s.DBMS, dbms) {
			return s
		}
	}
	return selected
}
