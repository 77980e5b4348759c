package main

import (
	"log"

	"github.com/BIwashi/candbc/app/check"
	"github.com/BIwashi/candbc/app/convert"
	"github.com/BIwashi/candbc/app/decode"
	"github.com/BIwashi/candbc/app/encode"
	"github.com/BIwashi/candbc/app/export"
	"github.com/BIwashi/candbc/app/gen"
	"github.com/BIwashi/candbc/app/normalize"
	"github.com/BIwashi/candbc/pkg/cli"
)

func main() {
	c := cli.NewCLI(
		"candbc",
		"Parse, normalize and generate DBC files, and decode CAN traffic with them.",
	)

	c.AddCommands(
		convert.NewCommand(),
		normalize.NewCommand(),
		export.NewCommand(),
		gen.NewCommand(),
		check.NewCommand(),
		decode.NewCommand(),
		encode.NewCommand(),
	)

	if err := c.Run(); err != nil {
		log.Fatal(err)
	}
}
