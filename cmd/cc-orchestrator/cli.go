// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagVersion     bool
	flagDev         bool
	flagLogDateTime bool
	flagConfigFile  string
	flagLogLevel    string
	flagUser        string
	flagGroup       string
)

func cliInit() {
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagDev, "dev", false, "Enable development conveniences (verbose request logging)")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagConfigFile, "config", "./.env", "Path to the .env file holding CLUSTER_* configuration")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Sets the logging level: `[debug, info, notice, warn, err, crit]`")
	flag.StringVar(&flagUser, "user", "", "Drop privileges to this user after binding the listen port")
	flag.StringVar(&flagGroup, "group", "", "Drop privileges to this group after binding the listen port")
	flag.Parse()
}
