// Package image manages the local cache of base images.
//
// The cache has three directories, all owned by Manager:
//
//	<base>/<image>              downloaded base images
//	<hash>/<image>.<ALGO>       published checksum manifests
//	<hash>/<image>.<ALGO>.OK    verification markers
//
// Pulling an image downloads it (once), fetches the manifests published
// next to it when the host is trusted, and verifies the SHA256 manifest.
// A successful verification leaves a marker so later checks are free.
// Removing an image removes its manifests and markers with it.
package image
