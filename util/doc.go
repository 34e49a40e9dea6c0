// Package util provides generic utility functions shared across tilekit packages.
//
// It includes slice operations, pointer helpers, map utilities, string
// sanitization, and common validation helpers.
package util
