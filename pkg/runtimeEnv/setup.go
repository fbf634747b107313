// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtimeEnv holds process-lifecycle helpers that don't belong to
// any single cluster-core component: privilege dropping, systemd
// readiness notification, and .env loading at startup.
package runtimeEnv

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kRxZykRxZy/gittic/pkg/log"
)

// DropPrivileges changes the process's user and group to the ones given.
// The Go runtime takes care of all threads (not just the calling one)
// executing the underlying syscall.
func DropPrivileges(username string, group string) error {
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			log.Warn("runtimeEnv: error while looking up group")
			return err
		}

		gid, _ := strconv.Atoi(g.Gid)
		if err := syscall.Setgid(gid); err != nil {
			log.Warn("runtimeEnv: error while setting gid")
			return err
		}
	}

	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			log.Warn("runtimeEnv: error while looking up user")
			return err
		}

		uid, _ := strconv.Atoi(u.Uid)
		if err := syscall.Setuid(uid); err != nil {
			log.Warn("runtimeEnv: error while setting uid")
			return err
		}
	}

	return nil
}

// SystemdNotify informs systemd that the process is running, if started
// via systemd. See:
// https://www.freedesktop.org/software/systemd/man/sd_notify.html
func SystemdNotify(ready bool, status string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		// Not started using systemd
		return
	}

	args := []string{fmt.Sprintf("--pid=%d", os.Getpid())}
	if ready {
		args = append(args, "--ready")
	}

	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}

	cmd := exec.Command("systemd-notify", args...)
	cmd.Run() // errors ignored on purpose, there is not much to do anyways.
}

// LoadDotEnv loads a .env file (if present) into the process environment
// before internal/config reads its CLUSTER_* keys. A missing file is not
// an error: production deployments set the environment directly.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("runtimeEnv: could not load %s: %s", path, err.Error())
		}
	}
}
