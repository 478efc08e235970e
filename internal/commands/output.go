package commands

import "github.com/fatih/color"

var (
	success = color.New(color.FgGreen).SprintFunc()
	failure = color.New(color.FgRed).SprintFunc()
	muted   = color.New(color.Faint).SprintFunc()
	heading = color.New(color.Bold).SprintFunc()
)
