package script

import (
	"fmt"

	"github.com/dop251/goja"
)

// SecurityLevel values for the sandbox
const (
	SecurityLevelStrict   = "strict"
	SecurityLevelStandard = "standard"
)

// Sandbox manages security restrictions for JavaScript execution
type Sandbox struct {
	securityLevel string
}

// NewSandbox creates a new sandbox with the given security level
func NewSandbox(securityLevel string) *Sandbox {
	if securityLevel == "" {
		securityLevel = SecurityLevelStandard
	}
	return &Sandbox{securityLevel: securityLevel}
}

// Apply applies sandbox restrictions to a VM runtime
func (s *Sandbox) Apply(vm *goja.Runtime) error {
	if err := s.removeDangerousGlobals(vm); err != nil {
		return fmt.Errorf("failed to remove dangerous globals: %w", err)
	}
	if s.securityLevel == SecurityLevelStrict {
		if err := s.restrictEval(vm); err != nil {
			return err
		}
	}
	return nil
}

// removeDangerousGlobals removes globals that could reach outside the sandbox
func (s *Sandbox) removeDangerousGlobals(vm *goja.Runtime) error {
	dangerousGlobals := []string{
		"require",
		"module",
		"exports",
		"process",
		"global",
		"__dirname",
		"__filename",
		"Buffer",
		"setImmediate",
		"clearImmediate",
	}

	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	return nil
}

// restrictEval replaces eval with a version that throws
func (s *Sandbox) restrictEval(vm *goja.Runtime) error {
	restrictedEval := func(call goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("eval is not allowed in strict security mode"))
	}
	if err := vm.Set("eval", restrictedEval); err != nil {
		return fmt.Errorf("failed to restrict eval: %w", err)
	}
	return nil
}
