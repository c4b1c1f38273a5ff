package disk

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"
	"strings"
)

// QEMUConfPath is where libvirt configures the user QEMU runs as.
const QEMUConfPath = "/etc/libvirt/qemu.conf"

// Owner is the numeric owner given to VM files.
type Owner struct {
	UID int
	GID int
}

// LookupQEMUOwner returns the user and group QEMU processes run as under
// qemu:///system. The user and group settings in confPath win; otherwise
// the common "qemu" and "libvirt-qemu" accounts are tried.
func LookupQEMUOwner(confPath string) (Owner, error) {
	var username, groupname string
	if f, err := os.Open(confPath); err == nil {
		username, groupname = parseQEMUConf(f)
		_ = f.Close()
	}

	candidates := []string{"qemu", "libvirt-qemu"}
	if username != "" {
		candidates = append([]string{username}, candidates...)
	}

	for _, name := range candidates {
		u, err := user.Lookup(name)
		if err != nil {
			continue
		}
		gid := u.Gid
		if groupname != "" && name == username {
			if g, err := user.LookupGroup(groupname); err == nil {
				gid = g.Gid
			}
		}
		return toOwner(u.Uid, gid)
	}

	return Owner{}, fmt.Errorf("could not determine the QEMU user (tried %s)", strings.Join(candidates, ", "))
}

// parseQEMUConf extracts the user and group settings from qemu.conf text.
func parseQEMUConf(r io.Reader) (username, groupname string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}
	return username, groupname
}

func toOwner(uid, gid string) (Owner, error) {
	u, err := strconv.Atoi(uid)
	if err != nil {
		return Owner{}, fmt.Errorf("invalid uid %q: %w", uid, err)
	}
	g, err := strconv.Atoi(gid)
	if err != nil {
		return Owner{}, fmt.Errorf("invalid gid %q: %w", gid, err)
	}
	return Owner{UID: u, GID: g}, nil
}
