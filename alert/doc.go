// Package alert defines operator alerts raised by the stall detector
// and the metrics evaluator, and the notifier contract through which a
// notification dispatcher consumes them. Alerts are immutable once
// created.
package alert
