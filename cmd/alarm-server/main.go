// Command alarm-server schedules alarms and pushes their messages to identified TCP clients.
package main

import "github.com/oshokin/alarm-push/cmd/alarm-server/cmd"

func main() {
	cmd.Execute()
}
