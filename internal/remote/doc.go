// Package remote runs ssh and scp against a VM's leased address.
//
// Commands are executed through a Runner so tests can capture the argument
// vectors instead of spawning processes.
package remote
