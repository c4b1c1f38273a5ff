// Package checksum computes and compares file digests against the
// expected values published in checksum manifests.
//
// A manifest is a two-line text record published next to an image:
//
//	SHA256SUM (rhel-8.qcow2)
//	2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824  rhel-8.qcow2
//
// The expected digest is the last whitespace-separated token of the second
// line. Digests are compared as lowercase hex strings.
//
// Supported algorithms are MD5SUM, SHA1SUM and SHA256SUM; the algorithm
// name doubles as the manifest file suffix.
package checksum
