// ABOUTME: Read-only view handed to a stage, limited to its declared dependencies
// ABOUTME: Reading anything else is a programming error reported as StageFatalError

package workflow

import (
	"encoding/json"
	"fmt"
)

// View exposes the outputs of a stage's declared dependencies.
type View struct {
	stage   string
	outputs map[string]Output
}

func newView(stage Stage, outputs map[string]Output) View {
	v := View{stage: stage.Name, outputs: make(map[string]Output, len(stage.DependsOn))}
	for _, dep := range stage.DependsOn {
		if out, ok := outputs[dep]; ok {
			v.outputs[dep] = out
		}
	}
	return v
}

// Output returns a dependency's output.
func (v View) Output(name string) (Output, error) {
	out, ok := v.outputs[name]
	if !ok {
		return Output{}, Fatal(v.stage, fmt.Errorf("read of undeclared or unfinished dependency %q", name))
	}
	return out, nil
}

// Degraded reports whether the named dependency fell back to its placeholder.
func (v View) Degraded(name string) bool {
	out, ok := v.outputs[name]
	return ok && out.Status == StatusDegraded
}

// Decode copies a dependency's artifact into dst. The copy goes through JSON,
// so a stage can never mutate another stage's artifact.
func (v View) Decode(name string, dst any) error {
	out, err := v.Output(name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(out.Artifact)
	if err != nil {
		return Fatal(v.stage, fmt.Errorf("encoding artifact of %q: %w", name, err))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return Fatal(v.stage, fmt.Errorf("decoding artifact of %q: %w", name, err))
	}
	return nil
}
