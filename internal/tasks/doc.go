// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks runs detached background work for the launcher.
//
// A chat call returns to its caller before the model stream is consumed;
// the consumption runs as a Task spawned on a Scheduler. Every task gets a
// uuid, is logged when it starts and finishes, has panics recovered into
// errors, and reports its result to an optional completion callback.
// Shutdown cancels the scheduler's root context and waits for the
// outstanding tasks.
//
// # Usage
//
//	sched := tasks.NewScheduler(logger)
//	sched.Go("relay "+id, func(ctx context.Context) error {
//	    return relay.Run(ctx, id, stream).Err()
//	}, func(t *tasks.Task) {
//	    log.Printf("%s", t.Summary())
//	})
//	...
//	sched.Shutdown(ctx)
package tasks
