// Package repository wraps the gateway for projects and tasks. Calls never
// return Go errors; every outcome is a Result carrying either the domain
// value or a user-facing Failure.
package repository

import (
	"errors"
	"log"

	"github.com/kidandcat/taskflow/internal/api"
)

// Failure is a gateway or validation error reduced to one message.
type Failure struct {
	Kind    api.Kind
	Message string
}

func (f *Failure) Error() string { return f.Message }

type Result[T any] struct {
	Value T
	Err   *Failure
}

func (r Result[T]) OK() bool { return r.Err == nil }

func ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func invalid[T any](msg string) Result[T] {
	return Result[T]{Err: &Failure{Kind: api.KindValidation, Message: msg}}
}

// failed builds the failure for action ("load projects", "create task").
func failed[T any](logger *log.Logger, action string, err error) Result[T] {
	logger.Printf("error %s: %v", action, err)
	return Result[T]{Err: &Failure{Kind: api.KindOf(err), Message: message(action, err)}}
}

func message(action string, err error) string {
	msg := "Failed to " + action
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return msg
	}
	switch {
	case apiErr.Kind == api.KindNetwork:
		return msg + ": cannot reach the server"
	case apiErr.Detail != "":
		return msg + ": " + apiErr.Detail
	}
	return msg
}

type Option func(*options)

type options struct {
	logger *log.Logger
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
