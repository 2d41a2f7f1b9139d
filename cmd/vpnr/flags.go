package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags Flag structs to decouple cobra from logic for testing.
type RunFlags struct {
	ConfigPath  string
	StopTimeout time.Duration
}

type LibPathFlags struct {
	Exe       string
	NativeDir string
	Existing  string
	NoEnv     bool
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Logs       int
	Insecure   bool
	CACert     string
}

type HistoryFlags struct {
	ConfigPath string
	DSNs       []string
	Limit      int
	JSON       bool
}
