package main

import (
	"github.com/alecthomas/kong"

	"github.com/chaz8081/bleremote/internal/cli"
)

func main() {
	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("bleremote"),
		kong.Description("Bluetooth LE remote for a Direction pad and a five-servo arm"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&c))
}
