// Package verifycache persists "verified OK" markers for cached images.
//
// A marker lives at <hashDir>/<image>.<ALGO>.OK and has the same two-line
// shape as a checksum manifest. Its presence means the image matched the
// published digest for that algorithm at some point; markers are never
// invalidated when the image changes afterwards.
package verifycache
