package controller

import (
	"fmt"

	"github.com/d5/tengo/v2"
)

const condResult = "__cond__"

// Condition is one compiled edge expression. The compiled script is
// shared by the controller asset; each runtime context clones it before
// first use so per-entity evaluation never races.
type Condition struct {
	Source   string
	compiled *tengo.Compiled
}

// CompileCondition compiles a boolean expression over the declared
// inputs plus state_time, the current node's local playback time.
func CompileCondition(expr string, inputs []Input) (*Condition, error) {
	script := tengo.NewScript([]byte(condResult + " := (" + expr + ")"))
	for _, in := range inputs {
		var err error
		switch in.Type {
		case InputFloat:
			err = script.Add(in.Name, float64(0))
		case InputInt:
			err = script.Add(in.Name, int64(0))
		case InputBool:
			err = script.Add(in.Name, false)
		}
		if err != nil {
			return nil, fmt.Errorf("condition %q: add input %q: %w", expr, in.Name, err)
		}
	}
	if err := script.Add("state_time", float64(0)); err != nil {
		return nil, fmt.Errorf("condition %q: %w", expr, err)
	}
	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", expr, err)
	}
	return &Condition{Source: expr, compiled: compiled}, nil
}

// Clone returns a context-private copy safe for concurrent evaluation
// against other contexts of the same controller.
func (c *Condition) Clone() *tengo.Compiled {
	return c.compiled.Clone()
}

// EvalCondition runs a cloned condition against the current input values.
// Evaluation errors read as false so a bad expression cannot wedge a
// state machine mid-transition.
func EvalCondition(compiled *tengo.Compiled, inputs []Input, values []Value, stateTime float32) bool {
	for i, in := range inputs {
		var err error
		switch in.Type {
		case InputFloat:
			err = compiled.Set(in.Name, float64(values[i].Float))
		case InputInt:
			err = compiled.Set(in.Name, int64(values[i].Int))
		case InputBool:
			err = compiled.Set(in.Name, values[i].Bool)
		}
		if err != nil {
			return false
		}
	}
	if err := compiled.Set("state_time", float64(stateTime)); err != nil {
		return false
	}
	if err := compiled.Run(); err != nil {
		return false
	}
	v := compiled.Get(condResult)
	if v == nil {
		return false
	}
	return v.Bool()
}
