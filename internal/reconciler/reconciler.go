// Package reconciler converts one-shot scheduled enable/disable dates into
// steady-state environment configuration.
//
// The decision logic is the pure Plan function; the Runner wraps it in a
// periodic task with an injected clock so the logic is unit-testable
// without real timers.
package reconciler

import (
	"time"

	"github.com/veigo-labs/flagward/internal/flag"
)

// Transition is the kind of scheduled state change applied to a flag.
type Transition string

const (
	TransitionEnable  Transition = "enable"
	TransitionDisable Transition = "disable"
)

// Action is one planned transition for one flag.
type Action struct {
	Def         *flag.Definition
	Transition  Transition
	Environment flag.Environment
}

// Plan computes the transitions due at now for the given ambient
// environment. dueEnable and dueDisable come from the store's due queries;
// Plan re-checks the predicates so it stays correct even when handed an
// unfiltered flag list.
//
// An enable is due when the scheduled enable date has passed and the
// master switch is off; a disable when the scheduled disable date has
// passed and the master switch is on. Both are one-shot: applying an
// action clears its date, so a second run plans nothing.
func Plan(now time.Time, env flag.Environment, dueEnable, dueDisable []*flag.Definition) []Action {
	var actions []Action

	for _, def := range dueEnable {
		if def.Active || def.ScheduledEnableAt == nil || def.ScheduledEnableAt.After(now) {
			continue
		}
		actions = append(actions, Action{Def: def, Transition: TransitionEnable, Environment: env})
	}

	for _, def := range dueDisable {
		if !def.Active || def.ScheduledDisableAt == nil || def.ScheduledDisableAt.After(now) {
			continue
		}
		actions = append(actions, Action{Def: def, Transition: TransitionDisable, Environment: env})
	}

	return actions
}
