// Package vm drives the lifecycle of thinbox VMs.
//
// A thinbox VM is a libvirt domain whose only disk is a qcow2 overlay of a
// cached base image, plus a cloud-init seed ISO that sets the hostname and
// installs the user's SSH key for root.
//
// The main operations are:
//   - CreateFromImage: overlay disk, seed ISO, define and start
//   - Start, Stop: a single create or shutdown call
//   - Remove, RemoveAll: destroy, undefine and delete the VM files
//   - List, IP: state and leased address of each VM
//
// Creation is cleaned up on failure: anything defined or written before
// the failing step is removed again, best effort.
package vm
