// Package app provides the application layer.
//
// LifecycleHandler turns transport events into registry mutations and
// broadcasts; Sweeper purges expired registry records in the background.
// Both depend on domain interfaces, not concrete implementations.
package app
