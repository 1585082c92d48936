package domain

// Identity — идентичность воркера в запросах к сервису очереди.
type Identity struct {
	Ticket     string
	Key        string
	User       string
	Host       string
	DBMS       string
	DB         string
	Project    string
	Experiment string

	// Extras — просить у сервера шаблон и таблицу привязок вместе с task.
	Extras bool
}

// HostInfo — характеристики машины, прикладываемые к результату.
type HostInfo struct {
	CPUCount int
	RAMSize  uint64
}
