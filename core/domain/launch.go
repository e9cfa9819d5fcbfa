package domain

import (
	"fmt"
	"strings"
)

// LaunchCommand starts the ASGI server as the container's foreground process
type LaunchCommand struct {
	Server string `json:"server"`
	App    string `json:"app"`
}

func DefaultLaunchCommand() LaunchCommand {
	return LaunchCommand{Server: "uvicorn", App: "app.main:app"}
}

// Argv is the exec form used in the image. The shell only expands the
// bind variables and then execs the server so it stays PID 1.
func (l LaunchCommand) Argv() []string {
	return []string{"sh", "-c", fmt.Sprintf(`exec %s %s --host "$%s" --port "$%s"`, l.Server, l.App, EnvAppHost, EnvAppPort)}
}

func (l LaunchCommand) Validate() error {
	if strings.TrimSpace(l.Server) == "" || strings.TrimSpace(l.App) == "" {
		return fmt.Errorf("%w: launch command needs server and app", ErrInvalidDescriptor)
	}
	if strings.ContainsAny(l.Server+l.App, "\"'$`;&| ") {
		return fmt.Errorf("%w: launch command contains shell metacharacters", ErrInvalidDescriptor)
	}
	return nil
}
