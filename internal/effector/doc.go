// Package effector holds the downstream action clients the dispatcher can
// invoke: email notification, task-board creation, and workflow trigger.
//
// Each effector is independently optional: when its configuration is absent
// it logs and no-ops, and its errors are logged at the dispatch site rather
// than failing the pipeline. All effectors tolerate repeat invocation for
// the same request (at-least-once redelivery).
package effector
