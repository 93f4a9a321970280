package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/ilcdirac/internal/execution"
)

// LCSIM runs the SiD reconstruction through the lcsim java distribution.
// The steering file reads the job values through the inputFiles,
// outputFile and numberOfEvents variables.
type LCSIM struct {
	app
}

func (l *LCSIM) Validate(_ context.Context, sc *execution.StepContext) error {
	if err := requireFile(sc, "inputXML", sc.String("inputXML")); err != nil {
		return err
	}
	if alias := sc.String("aliasproperties"); alias != "" {
		if err := requireFile(sc, "aliasproperties", alias); err != nil {
			return err
		}
	}
	return requireFiles(sc, "inputSlcio", sc.InputFiles("inputSlcio", ".slcio"))
}

func (l *LCSIM) Setup(_ context.Context, sc *execution.StepContext) (*execution.Script, error) {
	rel, err := l.release(sc)
	if err != nil {
		return nil, err
	}
	jar := rel.Path("lcsim.jar")
	if _, err := os.Stat(jar); err != nil {
		jars, _ := filepath.Glob(rel.Path("*.jar"))
		if len(jars) == 0 {
			return nil, fmt.Errorf("no lcsim jar in %s", rel.Dir)
		}
		jar = jars[0]
	}

	// lcsim looks up detector aliases in $HOME/.lcsim.
	home := sc.Job.WorkDir
	if alias := sc.String("aliasproperties"); alias != "" {
		if err := os.MkdirAll(filepath.Join(home, ".lcsim"), 0o755); err != nil {
			return nil, err
		}
		if err := copyInto(sc, sc.Path(execution.LocalName(alias)), filepath.Join(".lcsim", "alias.properties")); err != nil {
			return nil, fmt.Errorf("install alias.properties: %w", err)
		}
	}

	args := []string{
		"-Xmx1536m", "-Xms256m", "-server",
		"-Dorg.lcsim.cacheDir=" + sc.Job.WorkDir,
		"-jar", jar,
		"-DinputFiles=" + strings.Join(sc.InputFiles("inputSlcio", ".slcio"), ","),
	}
	if out := sc.String("outputFile"); out != "" {
		args = append(args, "-DoutputFile="+strings.TrimSuffix(out, ".slcio"))
	}
	if n := sc.Events("EvtsToProcess"); n > 0 {
		args = append(args, fmt.Sprintf("-DnumberOfEvents=%d", n))
	}
	args = append(args, execution.LocalName(sc.String("inputXML")))

	s, err := l.script(sc, rel, execution.Command("java", args...))
	if err != nil {
		return nil, err
	}
	s.Env["HOME"] = home
	return s, nil
}
