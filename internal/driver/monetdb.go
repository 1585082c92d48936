package driver

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

const defaultMonetDBCommand = `mclient -d {db} -tperformance -ftrash -s {query}`

var (
	monetdbRun = regexp.MustCompile(`run:(\d+\.\d+)`)
	monetdbOpt = regexp.MustCompile(`opt:(\d+\.\d+)`)
	monetdbSQL = regexp.MustCompile(`sql:(\d+\.\d+)`)
)

// MonetDBDriver — адаптер через mclient с отчётом -tperformance.
//
// Время запуска — сумма sql + opt + run (мс), составляющие уходят в Extra
// в порядке [run, opt, sql].
type MonetDBDriver struct{}

func (d *MonetDBDriver) Name() string { return "monetdb" }

func (d *MonetDBDriver) Open(_ context.Context, target Target) (Session, error) {
	return openCLI(cliConfig{
		Backend: d.Name(),
		Command: commandOr(target.Command, defaultMonetDBCommand),
		Target:  target,
		Parse:   parseMonetDBOutput,
	})
}

func parseMonetDBOutput(out []byte, _ float64) (Measurement, error) {
	run := monetdbRun.FindSubmatch(out)
	if run == nil {
		text := string(out)
		if i := strings.Index(text, "ERROR"); i >= 0 {
			return Measurement{}, &BackendError{
				Kind:    ErrExecution,
				Message: strings.TrimSpace(strings.TrimLeft(text[i+len("ERROR"):], " =!")),
			}
		}
		return Measurement{}, errNoTiming
	}

	ms, err := strconv.ParseFloat(string(run[1]), 64)
	if err != nil {
		return Measurement{}, err
	}
	opt := matchFloat(monetdbOpt, out)
	sql := matchFloat(monetdbSQL, out)

	return Measurement{
		Elapsed:     ms + opt + sql,
		Fingerprint: "",
		Extra:       []float64{ms, opt, sql},
	}, nil
}

func matchFloat(re *regexp.Regexp, out []byte) float64 {
	m := re.FindSubmatch(out)
	if m == nil {
		return 0
	}
	f, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0
	}
	return f
}
