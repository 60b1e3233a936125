package main

import (
	"sakaibot/cmd/sakaibot/commands"
	"sakaibot/lib/osutil"
)

func main() {
	ctx, stop := osutil.SignalContext()
	defer stop()
	commands.ExecuteContext(ctx)
}
