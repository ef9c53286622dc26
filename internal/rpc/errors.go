package rpc

import (
	"errors"
	"sort"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/kingrea/archspec/internal/placeholder"
	"github.com/kingrea/archspec/internal/planner"
	"github.com/kingrea/archspec/internal/registry"
	"github.com/kingrea/archspec/internal/scaffold"
	"github.com/kingrea/archspec/internal/spec"
)

// unresolvedData is attached to CodeUnresolvedBinding errors.
type unresolvedData struct {
	Token     string   `json:"token"`
	Missing   []string `json:"missing,omitempty"`
	TaskID    string   `json:"taskId,omitempty"`
	StepOrder int      `json:"stepOrder,omitempty"`
	Field     string   `json:"field,omitempty"`
}

func toRPCError(err error) *jsonrpc2.Error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	out := &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
	var (
		invalid invalidParamsError
		verr    *spec.ValidationError
		uerr    *placeholder.UnresolvedError
		bindErr *planner.BindingMissingError
	)
	switch {
	case errors.As(err, &invalid):
		out.Code = jsonrpc2.CodeInvalidParams
	case errors.Is(err, registry.ErrSpecNotFound):
		out.Code = CodeSpecNotFound
	case errors.Is(err, registry.ErrUnknownOption), errors.Is(err, registry.ErrInvalidChoice):
		out.Code = CodeInvalidOption
	case errors.As(err, &bindErr):
		out.Code = CodeUnresolvedBinding
		out.SetError(unresolvedData{Token: bindErr.Token, Missing: bindErr.Missing, TaskID: bindErr.TaskID, StepOrder: bindErr.StepOrder, Field: bindErr.Field})
	case errors.As(err, &uerr):
		out.Code = CodeUnresolvedBinding
		out.SetError(unresolvedData{Token: uerr.Token, Missing: uerr.Missing})
	case errors.As(err, &verr):
		out.Code = CodeInvalidSpec
		out.SetError(verr.Problems)
	case errors.Is(err, spec.ErrInvalidSpec):
		out.Code = CodeInvalidSpec
	case errors.Is(err, scaffold.ErrNoTemplate), errors.Is(err, scaffold.ErrUnknownVariant):
		out.Code = CodeNoTemplate
	case errors.Is(err, planner.ErrStepOrder), errors.Is(err, planner.ErrUnknownTask):
		out.Code = CodeInvalidTask
	}
	return out
}

func sortStrings(values []string) []string {
	sort.Strings(values)
	return values
}
