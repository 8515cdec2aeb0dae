package agent

import (
	"fmt"

	"github.com/kardianos/service"
)

// ServiceActions are the values accepted by RunService
var ServiceActions = []string{"install", "uninstall", "start", "stop", "restart", "run"}

// program adapts Agent to the service manager's Start/Stop lifecycle
type program struct {
	configPath string
	version    string
	agent      *Agent
	done       chan error
}

func (p *program) Start(s service.Service) error {
	a, err := New(p.configPath, p.version)
	if err != nil {
		return err
	}
	p.agent = a
	p.done = make(chan error, 1)

	// Start must not block
	go func() {
		p.done <- a.Run()
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.agent == nil {
		return nil
	}
	p.agent.cancel()
	return <-p.done
}

// ServiceConfig describes the installed service. The service runs the
// binary in daemon mode with the given config file.
func ServiceConfig(configPath string) *service.Config {
	return &service.Config{
		Name:        "autoregister",
		DisplayName: "NetBox Auto-Register",
		Description: "Registers this host as a device in NetBox",
		Arguments:   []string{"-config", configPath, "-daemon"},
	}
}

// RunService performs a service control action, or runs under the service
// manager when action is "run"
func RunService(action, configPath, version string) error {
	if !validAction(action) {
		return fmt.Errorf("invalid service action %q, valid actions: %v", action, ServiceActions)
	}

	prg := &program{configPath: configPath, version: version}

	s, err := service.New(prg, ServiceConfig(configPath))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	if action == "run" {
		return s.Run()
	}

	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("service %s failed: %w", action, err)
	}
	return nil
}

func validAction(action string) bool {
	for _, a := range ServiceActions {
		if a == action {
			return true
		}
	}
	return false
}
