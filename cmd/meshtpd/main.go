package main

import (
	"github.com/mcadvchat/meshtp/server/gateway"
)

func main() {
	gateway.Main()
}
