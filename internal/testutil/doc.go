// Package testutil contains helper builders and recorders used across tests
// to reduce boilerplate when constructing run contexts and asserting on the
// runner lifecycle. They are not intended for production usage.
package testutil
