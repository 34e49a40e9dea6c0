// Package cache provides the per-tile computation coordinator: a
// mutex-guarded map from tile id to either a settled value or a one-shot
// completion signal that concurrent callers await.
package cache
