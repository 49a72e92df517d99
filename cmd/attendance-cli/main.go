package main

import (
	"attendance-backend/cmd/attendance-cli/commands"
	"attendance-backend/internal/components/serviceutil"
	"attendance-backend/internal/components/telemetry"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext(telemetry.SlogAPI{}))
}
