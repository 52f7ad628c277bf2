// Package internal holds helpers shared by the root token service that are
// not part of the public API surface.
package internal
