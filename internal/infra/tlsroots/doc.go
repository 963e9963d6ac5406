// Package tlsroots loads TLS material for memkv's two TLS surfaces:
//
//   - roots.go: the trust pool of the archive's object store client
//     (system roots plus an optional private CA bundle)
//   - keypair.go: the serving certificate of the admin HTTP endpoint,
//     reloaded when its files change on disk
package tlsroots
