// Package rules models the rule-engine callback boundary the core
// dispatches through at well-known points in an operation's lifecycle.
// The rule-engine language itself is out of scope; only the callback
// interface is modeled, the same way pkg/resource models only the
// physical-storage plugin dispatch table and not a storage driver.
package rules

import (
	"context"

	"github.com/dataforge/objectcore/pkg/log"
	"github.com/dataforge/objectcore/pkg/replica"
)

// Hooks is the uniform set of named pre/post rule-engine callbacks.
// Pre-hooks run before a side effect and can abort the operation by
// returning an error; post-hooks run after and are logged only, their
// return value never propagates to the caller.
type Hooks interface {
	// AcSetRescSchemeForCreate runs before resolving a hierarchy for a
	// CREATE, letting policy steer which root resource is eligible.
	AcSetRescSchemeForCreate(ctx context.Context, obj *replica.Object, hints replica.ConditionalInput) error

	// AcPreprocForDataObjOpen runs before a physical open and can deny
	// the operation (permission/quota policy).
	AcPreprocForDataObjOpen(ctx context.Context, obj *replica.Object, r *replica.Replica, hints replica.ConditionalInput) error

	AcPostProcForCreate(ctx context.Context, obj *replica.Object, r *replica.Replica)
	AcPostProcForOpen(ctx context.Context, obj *replica.Object, r *replica.Replica)
	AcPostProcForPut(ctx context.Context, obj *replica.Object, r *replica.Replica)
	AcPostProcForCopy(ctx context.Context, obj *replica.Object, r *replica.Replica)
	AcPostProcForRepl(ctx context.Context, obj *replica.Object, r *replica.Replica)
	AcPostProcForPhymv(ctx context.Context, obj *replica.Object, r *replica.Replica)
}

// NopHooks is a Hooks implementation that never aborts and never logs;
// suitable for tests and for deployments without a rule-engine binding.
type NopHooks struct{}

func (NopHooks) AcSetRescSchemeForCreate(context.Context, *replica.Object, replica.ConditionalInput) error {
	return nil
}

func (NopHooks) AcPreprocForDataObjOpen(context.Context, *replica.Object, *replica.Replica, replica.ConditionalInput) error {
	return nil
}

func (NopHooks) AcPostProcForCreate(context.Context, *replica.Object, *replica.Replica) {}
func (NopHooks) AcPostProcForOpen(context.Context, *replica.Object, *replica.Replica)   {}
func (NopHooks) AcPostProcForPut(context.Context, *replica.Object, *replica.Replica)    {}
func (NopHooks) AcPostProcForCopy(context.Context, *replica.Object, *replica.Replica)   {}
func (NopHooks) AcPostProcForRepl(context.Context, *replica.Object, *replica.Replica)   {}
func (NopHooks) AcPostProcForPhymv(context.Context, *replica.Object, *replica.Replica)  {}

// LoggingHooks logs every hook invocation via pkg/log and otherwise
// behaves like NopHooks; useful as a development/debugging binding.
type LoggingHooks struct{}

func (LoggingHooks) AcSetRescSchemeForCreate(_ context.Context, obj *replica.Object, _ replica.ConditionalInput) error {
	log.WithComponent("rules").Debug().
		Str("logical_path", obj.LogicalPath).
		Msg("acSetRescSchemeForCreate")
	return nil
}

func (LoggingHooks) AcPreprocForDataObjOpen(_ context.Context, obj *replica.Object, r *replica.Replica, _ replica.ConditionalInput) error {
	log.WithComponent("rules").Debug().
		Str("logical_path", obj.LogicalPath).
		Int("replica_number", r.ReplicaNumber).
		Msg("acPreprocForDataObjOpen")
	return nil
}

func (LoggingHooks) AcPostProcForCreate(_ context.Context, obj *replica.Object, r *replica.Replica) {
	logPostProc("acPostProcForCreate", obj, r)
}

func (LoggingHooks) AcPostProcForOpen(_ context.Context, obj *replica.Object, r *replica.Replica) {
	logPostProc("acPostProcForOpen", obj, r)
}

func (LoggingHooks) AcPostProcForPut(_ context.Context, obj *replica.Object, r *replica.Replica) {
	logPostProc("acPostProcForPut", obj, r)
}

func (LoggingHooks) AcPostProcForCopy(_ context.Context, obj *replica.Object, r *replica.Replica) {
	logPostProc("acPostProcForCopy", obj, r)
}

func (LoggingHooks) AcPostProcForRepl(_ context.Context, obj *replica.Object, r *replica.Replica) {
	logPostProc("acPostProcForRepl", obj, r)
}

func (LoggingHooks) AcPostProcForPhymv(_ context.Context, obj *replica.Object, r *replica.Replica) {
	logPostProc("acPostProcForPhymv", obj, r)
}

func logPostProc(hook string, obj *replica.Object, r *replica.Replica) {
	log.WithComponent("rules").Debug().
		Str("hook", hook).
		Str("logical_path", obj.LogicalPath).
		Int("replica_number", r.ReplicaNumber).
		Msg("post-processing hook")
}
