// Package fetch downloads remote artifacts into the local cache.
//
// A download is streamed into "<dest>.part" and renamed onto dest only once
// the whole body has been written, so a file at dest is always complete.
// An existing dest is never downloaded again.
package fetch
