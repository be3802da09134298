// Package snapshot stores point-in-time images of the keyspace.
//
// Two Store implementations exist: Manager writes one checksummed file per
// snapshot, BadgerStore keeps them in a badger database. Both may encrypt
// the image with an adaptive cipher and both apply a retention policy.
package snapshot
