package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"bankchat/internal/logger"
)

// ErrUnknownCommand 表示注册表中没有对应处理函数；调用方应视为无害。
var ErrUnknownCommand = errors.New("unknown command")

// HandlerError 包装处理函数返回的错误或 panic。
type HandlerError struct {
	Name     string
	Err      error
	Panicked bool
}

func (e *HandlerError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("command %s panicked: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("command %s failed: %v", e.Name, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Dispatcher 将命令路由到注册表中的处理函数，隔离其错误与 panic。
type Dispatcher struct {
	registry *Registry
	app      any
	validate bool
	log      *logger.LogEntry
}

type DispatcherOption func(*Dispatcher)

// WithValidation 开启基于 metadata.parameters 的参数校验。
func WithValidation(enabled bool) DispatcherOption {
	return func(d *Dispatcher) { d.validate = enabled }
}

func WithDispatchLogger(entry *logger.LogEntry) DispatcherOption {
	return func(d *Dispatcher) {
		if entry != nil {
			d.log = entry
		}
	}
}

// NewDispatcher 创建分发器；app 作为 Invocation.App 传给每个处理函数。
func NewDispatcher(registry *Registry, app any, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		app:      app,
		log:      logger.Named("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch 执行一条命令。返回值仅供观察（测试、统计），
// 任何情况下都不会 panic，也不应中断流处理。
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (err error) {
	if d == nil || d.registry == nil {
		return ErrUnknownCommand
	}
	entry, ok := d.registry.Resolve(cmd.Name)
	logCommandReceived(d.log, cmd, ok)
	log := logger.Correlate(d.log, cmd.ID)
	if !ok {
		log.Warnf("no handler registered for command %q", cmd.Name)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	defer func() { logCommandResult(d.log, cmd, err) }()

	if d.validate {
		if verr := ValidateArguments(entry.Metadata, cmd); verr != nil {
			log.Warnf("rejecting command %q: %v", cmd.Name, verr)
			return verr
		}
	}
	return d.invoke(ctx, log, entry, cmd)
}

func (d *Dispatcher) invoke(ctx context.Context, log *logger.LogEntry, entry Entry, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok {
				perr = fmt.Errorf("%v", r)
			}
			err = &HandlerError{Name: cmd.Name, Err: perr, Panicked: true}
			log.Errorf("command %q panicked: %v\n%s", cmd.Name, r, debug.Stack())
		}
	}()

	if herr := entry.Handler(ctx, Invocation{Command: cmd, App: d.app}); herr != nil {
		log.Errorf("command %q failed: %v", cmd.Name, herr)
		return &HandlerError{Name: cmd.Name, Err: herr}
	}
	return nil
}
