package cmd

import (
	"fmt"
	"io"
)

const banner = `
                     _ _          _
   ___ __ _ _ __ __| | | ___  __| | __ _  ___ _ __
  / __/ _` + "`" + ` | '__/ _` + "`" + ` | |/ _ \/ _` + "`" + ` |/ _` + "`" + ` |/ _ \ '__|
 | (_| (_| | | | (_| | |  __/ (_| | (_| |  __/ |
  \___\__,_|_|  \__,_|_|\___|\__,_|\__, |\___|_|
                                    |___/
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Card Statement Console - Version %s\x1b[0m\n\n", Version)
}
