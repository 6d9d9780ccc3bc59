// Package app provides the application service layer.
//
// Registry owns connection lifecycle on top of a domain.RegistryStore, Broadcaster fans a
// message out to a registry snapshot and prunes connections reported gone, and Service maps
// the connect, disconnect and send triggers onto them. Depends on domain interfaces, not
// concrete adapters.
package app
