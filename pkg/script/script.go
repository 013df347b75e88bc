// Package script provides a sandboxed JavaScript validator for generation
// pipelines. A script defines a validate(text) function; its result decides
// whether the generated text is acceptable or another round is required.
package script

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/completion"
)

// Config holds the settings for a script validator
type Config struct {
	// Timeout is the maximum execution time per invocation (default: 5s)
	Timeout time.Duration

	// SecurityLevel defines sandbox restrictions (strict, standard)
	SecurityLevel string

	// Logger is used for execution diagnostics (optional)
	Logger *zap.Logger
}

// ApplyDefaults sets default values for configuration fields
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.SecurityLevel == "" {
		c.SecurityLevel = SecurityLevelStandard
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Validator executes a JavaScript validate(text) function inside a sandboxed
// runtime. The script is compiled once; each invocation runs on its own
// runtime so validators are safe for the engine's concurrent callback fan-out.
type Validator struct {
	program *goja.Program
	config  *Config
	sandbox *Sandbox
	logger  *zap.Logger

	mu sync.Mutex
	vm *goja.Runtime
}

// NewValidator compiles the given script. The script must define a global
// function validate(text) returning a truthy value when the text is
// acceptable.
func NewValidator(source string, config *Config) (*Validator, error) {
	if source == "" {
		return nil, fmt.Errorf("script is required")
	}
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()

	program, err := goja.Compile("validator.js", source, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}

	v := &Validator{
		program: program,
		config:  config,
		sandbox: NewSandbox(config.SecurityLevel),
		logger:  config.Logger,
	}

	// Fail fast on scripts that never define validate
	vm, err := v.newRuntime()
	if err != nil {
		return nil, err
	}
	if fn := vm.Get("validate"); fn == nil || goja.IsUndefined(fn) {
		return nil, fmt.Errorf("script must define a validate(text) function")
	}
	v.vm = vm

	return v, nil
}

// Accept runs the script against the given text and reports whether the text
// is acceptable. Execution errors and timeouts count as rejection.
func (v *Validator) Accept(text string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	vm := v.vm
	if vm == nil {
		runtime, err := v.newRuntime()
		if err != nil {
			v.logger.Error("Failed to build script runtime", zap.Error(err))
			return false
		}
		vm = runtime
		v.vm = vm
	}

	timer := time.AfterFunc(v.config.Timeout, func() {
		vm.Interrupt("script timeout")
	})
	defer timer.Stop()

	result, err := v.call(vm, text)
	if err != nil {
		// A poisoned runtime (interrupted or thrown) is discarded
		v.vm = nil
		v.logger.Warn("Script validation failed", zap.Error(err))
		return false
	}

	return result.ToBoolean()
}

// UntilCallback adapts the validator to the pipeline's Until contract: it
// returns true (retry) when the script rejects the text.
func (v *Validator) UntilCallback() completion.UntilCallback {
	return func(text string) bool {
		return !v.Accept(text)
	}
}

func (v *Validator) newRuntime() (*goja.Runtime, error) {
	vm := goja.New()
	if err := v.sandbox.Apply(vm); err != nil {
		return nil, fmt.Errorf("failed to apply sandbox: %w", err)
	}
	if _, err := vm.RunProgram(v.program); err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	return vm, nil
}

func (v *Validator) call(vm *goja.Runtime, text string) (result goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()

	fn, ok := goja.AssertFunction(vm.Get("validate"))
	if !ok {
		return nil, fmt.Errorf("validate is not a function")
	}
	return fn(goja.Undefined(), vm.ToValue(text))
}
