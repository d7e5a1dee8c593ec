// Command alarm-client connects to alarm-server, identifies itself and prints pushed alerts.
package main

import "github.com/oshokin/alarm-push/cmd/alarm-client/cmd"

func main() {
	cmd.Execute()
}
