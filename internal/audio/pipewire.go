package audio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// PipeWire queries the PipeWire graph through pw-link
type PipeWire struct{}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{}
}

// ListPorts returns all available ports in the PipeWire graph
func (pw *PipeWire) ListPorts() ([]string, error) {
	cmd := exec.Command("pw-link", "-io")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}

	return parsePortList(string(output)), nil
}

func parsePortList(output string) []string {
	lines := strings.Split(output, "\n")
	var ports []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}

	return ports
}

// ValidatePort checks if a specific port exists and has no duplicates
func (pw *PipeWire) ValidatePort(portName string) error {
	if portName == "" || portName == "disabled" {
		return nil
	}

	allPorts, err := pw.ListPorts()
	if err != nil {
		return fmt.Errorf("failed to check port: %w", err)
	}

	return validatePortInList(portName, allPorts)
}

func validatePortInList(portName string, allPorts []string) error {
	if portName == "" || portName == "disabled" {
		return nil
	}

	duplicates := findPortDuplicatesInList(portName, allPorts)
	if len(duplicates) == 0 {
		return fmt.Errorf("port not found: %s", portName)
	}
	if len(duplicates) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", portName, duplicates)
	}

	return nil
}

// ValidateNode checks that a node, such as the sink a tap should monitor,
// exposes at least one port
func (pw *PipeWire) ValidateNode(nodeName string) error {
	if nodeName == "" {
		return nil
	}

	allPorts, err := pw.ListPorts()
	if err != nil {
		return fmt.Errorf("failed to check node: %w", err)
	}

	if len(nodePortsInList(nodeName, allPorts)) == 0 {
		slog.Debug("PipeWire node has no ports", "node", nodeName, "ports", len(allPorts))
		return fmt.Errorf("node not found: %s", nodeName)
	}
	return nil
}

// findPortDuplicatesInList finds all ports with exactly the same name
func findPortDuplicatesInList(portName string, allPorts []string) []string {
	var duplicates []string
	for _, port := range allPorts {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}

	return duplicates
}

// nodePortsInList returns the ports that belong to nodeName
func nodePortsInList(nodeName string, allPorts []string) []string {
	var ports []string
	prefix := nodeName + ":"
	for _, port := range allPorts {
		if strings.HasPrefix(port, prefix) {
			ports = append(ports, port)
		}
	}
	return ports
}
