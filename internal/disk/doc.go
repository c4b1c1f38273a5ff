// Package disk creates and removes the files backing a VM: a qcow2 overlay
// on top of a cached base image and the cloud-init seed ISO.
package disk
