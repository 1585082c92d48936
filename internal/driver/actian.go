package driver

import (
	"bufio"
	"bytes"
	"context"
	"strings"
)

const defaultActianCommand = `sql {db}`

// ActianDriver — адаптер через терминальный монитор sql (Actian Vector / Ingres).
//
// Запрос подаётся на stdin с завершающим \g, время — wall clock процесса.
// Монитор завершается с кодом 0 и при ошибке запроса, поэтому строки
// вида "E_XX0000 ..." в выводе считаются ошибкой выполнения.
type ActianDriver struct{}

func (d *ActianDriver) Name() string { return "actian" }

func (d *ActianDriver) Open(_ context.Context, target Target) (Session, error) {
	return openCLI(cliConfig{
		Backend: d.Name(),
		Command: commandOr(target.Command, defaultActianCommand),
		Target:  target,
		Stdin:   actianInput,
		Parse:   parseActianOutput,
	})
}

func actianInput(query string) string {
	return query + "\\g\n"
}

func parseActianOutput(out []byte, wall float64) (Measurement, error) {
	if msg := actianError(out); msg != "" {
		return Measurement{}, &BackendError{Kind: ErrExecution, Message: msg}
	}
	return Measurement{Elapsed: wall, Fingerprint: ""}, nil
}

// actianError ищет первую строку с кодом ошибки E_.
func actianError(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "E_") {
			return line
		}
	}
	return ""
}
