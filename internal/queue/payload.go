package queue

import (
	"strings"

	"github.com/shaiso/squll/internal/domain"
)

// workRequest — тело GET /get_work.
type workRequest struct {
	User         string `json:"user"`
	Host         string `json:"host"`
	DBMS         string `json:"dbms"`
	DB           string `json:"db"`
	Project      string `json:"project"`
	Experiment   string `json:"experiment"`
	PasswordHash int    `json:"passwordhash"`
	Ticket       string `json:"ticket,omitempty"`
	Key          string `json:"key,omitempty"`
	Extras       string `json:"extras,omitempty"`
}

func newWorkRequest(id domain.Identity) workRequest {
	req := workRequest{
		User:       id.User,
		Host:       id.Host,
		DBMS:       id.DBMS,
		DB:         orAny(id.DB),
		Project:    orAny(id.Project),
		Experiment: orAny(id.Experiment),
		Ticket:     id.Ticket,
		Key:        id.Key,
	}
	if id.Extras {
		req.Extras = "yes"
	}
	return req
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// Payload — тело POST /put_work: Result Set вместе с идентичностью task и воркера.
type Payload struct {
	Exp        any    `json:"exp"`
	Tag        any    `json:"tag"`
	PTag       any    `json:"ptag"`
	Ticket     string `json:"ticket,omitempty"`
	Key        string `json:"key,omitempty"`
	User       string `json:"usr"`
	Host       string `json:"host"`
	DBMS       string `json:"dbms"`
	DB         string `json:"db"`
	Project    string `json:"project"`
	Experiment string `json:"experiment"`

	// Query — шаблон task с удвоенными одинарными кавычками.
	Query string `json:"query"`

	CPUCount int    `json:"cpucount"`
	RAMSize  uint64 `json:"ramsize"`

	// Load — загрузка до первого и после последнего запуска.
	Load []float64 `json:"load"`

	// Error — первая ошибка в наборе или "".
	Error string `json:"error"`

	Results domain.ResultSet `json:"results"`
}

// BuildPayload собирает тело put_work.
func BuildPayload(id domain.Identity, host domain.HostInfo, task *domain.Task, results domain.ResultSet) Payload {
	if results == nil {
		results = domain.ResultSet{}
	}

	dbms := task.DBMS
	if dbms == "" {
		dbms = id.DBMS
	}
	db := task.DB
	if db == "" {
		db = id.DB
	}

	load := []float64{}
	if len(results) > 0 {
		load = append(load, results[0].Metrics.PreLoad.Values()...)
		load = append(load, results[len(results)-1].Metrics.PostLoad.Values()...)
	}

	return Payload{
		Exp:        task.Exp,
		Tag:        task.Tag,
		PTag:       task.PTag,
		Ticket:     id.Ticket,
		Key:        id.Key,
		User:       id.User,
		Host:       id.Host,
		DBMS:       dbms,
		DB:         db,
		Project:    firstNonEmpty(task.Project, id.Project),
		Experiment: firstNonEmpty(task.Experiment, id.Experiment),
		Query:      strings.ReplaceAll(task.Query, "'", "''"),
		CPUCount:   host.CPUCount,
		RAMSize:    host.RAMSize,
		Load:       load,
		Error:      results.FirstError(),
		Results:    results,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
