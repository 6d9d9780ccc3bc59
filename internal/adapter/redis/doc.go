// Package redis implements the connection registry on a Redis hash.
//
// Every registered connection is one field of the registry hash, valued with its
// connected-at time in unix milliseconds. HSET and HDEL give last-writer-wins per
// connection ID; enumeration pages through the hash with HSCAN. All commands pass
// through a metrics hook and a circuit breaker hook.
package redis
