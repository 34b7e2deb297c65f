// Package policy provides Open Policy Agent (OPA) admission control for
// catalogue imports.
//
// Every import batch handed to the engine is evaluated against a set of Rego
// policies before anything is applied. Each policy package defines a `deny`
// set; entries are strings or objects with message, severity and record keys.
//
// # Usage
//
//	pe, err := policy.NewEngine(logger, policy.WithMode(policy.ModeEnforcing))
//	if err != nil {
//	    return err
//	}
//	if err := pe.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//	eng, err := engine.New(store, engine.WithPolicy(pe))
//
// # Built-in Policies
//
//  1. item-mass - items heavier than the per-container mass limit (error)
//  2. usage-limit - negative usage limits (error)
//  3. priority-range - priorities outside 0..100 (warning)
//  4. container-zone - containers without a zone (warning)
//  5. expired-on-arrival - items that are already waste (warning)
//
// # Custom Policies
//
// Leading comments of a .rego file carry its description and metadata:
//
//	# Items must name a preferred zone
//	# severity: error
//	package custom.zone
//
//	import rego.v1
//
//	deny contains violation if {
//	    some item in input.items
//	    item.preferred_zone == ""
//	    violation := {"message": "no preferred zone", "record": item.item_id}
//	}
//
// The input document holds kind, items or containers, the engine limits and
// a context with the evaluation timestamp, today's date and the mode.
//
// # Modes
//
// In enforcing mode error and critical violations reject the batch. In
// advisory mode error violations are reported as import warnings and only
// critical violations reject.
//
// # Hot Reload
//
// Loader.Watch observes policy directories with fsnotify and calls back with
// the reloaded set, which Engine.ReloadPolicies installs.
package policy
