// Package utils holds small shared helpers: bounded concurrent execution,
// panic recovery for stage goroutines, and the hashing used to build cache
// keys.
package utils
