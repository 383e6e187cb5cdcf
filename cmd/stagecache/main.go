package main

import (
	stagecache "github.com/0xa1bed0/stagecache/internal/apps/stagecache/cmds"
	"github.com/0xa1bed0/stagecache/internal/runtime"
)

func main() {
	var execErr error

	rt := runtime.New()
	defer rt.Finalize("stagecache", "Type 'stagecache help' to get help.", &execErr)

	execErr = stagecache.Execute(rt)
}
