package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config      string `short:"c" long:"config" description:"Configuration file (default: proteus.yaml if present)"`
	LogLevel    string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	Sim         bool   `long:"sim" description:"Use the simulated gripper regardless of driver.kind"`
	MetricsAddr string `long:"metrics-addr" description:"Serve Prometheus metrics on this address, e.g. :9100"`

	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Mirror the trigger onto the gripper with a live display"`
	Home        HomeCommand        `command:"home" description:"Find the hard stops and set the position references"`
	Jog         JogCommand         `command:"jog" description:"Open, close or move the gripper"`
	Scan        ScanCommand        `command:"scan" description:"Find servos on serial ports and print a configuration"`
	Replay      ReplayCommand      `command:"replay" description:"Summarize or print a telemetry recording"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Proteus - teleoperated two-actuator gripper"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
