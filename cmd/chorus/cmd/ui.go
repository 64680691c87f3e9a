package cmd

import "github.com/fatih/color"

const logo = `
   ____ _
  / ___| |__   ___  _ __ _   _ ___
 | |   | '_ \ / _ \| '__| | | / __|
 | |___| | | | (_) | |  | |_| \__ \
  \____|_| |_|\___/|_|   \__,_|___/
`

func printHeader(title string) {
	color.Cyan(logo)
	color.New(color.FgHiWhite, color.Bold).Println(title)
}
