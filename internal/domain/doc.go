// Package domain holds the contracts shared by the registry, the broadcaster
// and the adapters: the registry store, delivery channels and their outcomes,
// trigger requests and responses, and the sentinel errors callers match on.
// It has no dependencies on other packages in this module.
package domain
