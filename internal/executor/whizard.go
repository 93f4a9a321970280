package executor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/me/ilcdirac/internal/execution"
)

// whizardEvents is the file whizard writes its events to.
const whizardEvents = "whizard.001.stdhep"

// Whizard runs the event generator from an input template.
type Whizard struct {
	app
}

func (w *Whizard) Validate(_ context.Context, sc *execution.StepContext) error {
	return requireFile(sc, "InputFile", sc.String("InputFile"))
}

func (w *Whizard) Setup(_ context.Context, sc *execution.StepContext) (*execution.Script, error) {
	rel, err := w.release(sc)
	if err != nil {
		return nil, err
	}
	if err := writeWhizardInput(sc, sc.Path(execution.LocalName(sc.String("InputFile"))), sc.Path("whizard.in")); err != nil {
		return nil, err
	}

	commands := []string{"whizard", "status=$?"}
	if out := sc.String("outputFile"); out != "" && out != whizardEvents {
		// Keep whizard's exit status as the script status.
		commands = append(commands,
			fmt.Sprintf("if [ $status -eq 0 ] && [ -f %s ]; then mv %s %s; fi", whizardEvents, whizardEvents, execution.Quote(out)))
	}
	commands = append(commands, "exit $status")

	s, err := w.script(sc, rel, commands...)
	if err != nil {
		return nil, err
	}
	s.Env["WHIZARD_HOME"] = rel.Dir
	return s, nil
}

// writeWhizardInput fills the job values into the input template.
func writeWhizardInput(sc *execution.StepContext, src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	values := map[string]string{}
	if p := sc.String("EvtType"); p != "" {
		values["process_id"] = fmt.Sprintf("%q", p)
	}
	if n := sc.Events("NbOfEvts"); n > 0 {
		values["n_events"] = fmt.Sprint(n)
	}
	if lumi := sc.Int("Lumi"); lumi > 0 {
		values["luminosity"] = fmt.Sprint(lumi)
	}
	if seed := sc.Int("RandomSeed"); seed > 0 {
		values["seed"] = fmt.Sprint(seed)
	}

	var b strings.Builder
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if key, _, ok := strings.Cut(line, "="); ok {
			key = strings.TrimSpace(key)
			if v, set := values[key]; set {
				line = fmt.Sprintf(" %s = %s", key, v)
				delete(values, key)
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read whizard template %s: %w", src, err)
	}
	for _, key := range sortedKeys(values) {
		sc.Logger.Warn("whizard template has no entry", "key", key)
	}
	return os.WriteFile(dest, []byte(b.String()), 0o644)
}
