package audio

import (
	"strings"
	"testing"
)

func TestParsePortList(t *testing.T) {
	output := `Output ports:
alsa_output.pci-0000_00_1f.3.analog-stereo:monitor_FL
alsa_output.pci-0000_00_1f.3.analog-stereo:monitor_FR
Input ports:
alsa_output.pci-0000_00_1f.3.analog-stereo:playback_FL

`
	ports := parsePortList(output)
	if len(ports) != 3 {
		t.Fatalf("Expected 3 ports, got %d: %v", len(ports), ports)
	}
	if ports[0] != "alsa_output.pci-0000_00_1f.3.analog-stereo:monitor_FL" {
		t.Errorf("Unexpected first port: %s", ports[0])
	}
}

func TestValidatePort_Success(t *testing.T) {
	mockPorts := []string{"Chrome:output_FL", "system:capture_1"}

	err := validatePortInList("system:capture_1", mockPorts)
	if err != nil {
		t.Errorf("Expected no error for valid single port, got: %v", err)
	}
}

func TestValidatePort_NotFound(t *testing.T) {
	mockPorts := []string{"Chrome:output_FL"}

	err := validatePortInList("nonexistent:port", mockPorts)
	if err == nil {
		t.Fatal("Expected error for nonexistent port")
	}
	if !strings.Contains(err.Error(), "port not found") {
		t.Errorf("Expected 'port not found' error, got: %v", err)
	}
}

func TestValidatePort_DuplicateDetection(t *testing.T) {
	mockPorts := []string{
		"Chrome:output_FL",
		"Chrome:output_FL",   // True duplicate - same name appears twice
		"Chrome-2:output_FL", // Different instance - NOT a duplicate
	}

	err := validatePortInList("Chrome:output_FL", mockPorts)
	if err == nil {
		t.Fatal("Expected error for duplicate sources")
	}
	if !strings.Contains(err.Error(), "duplicate sources detected") {
		t.Errorf("Expected 'duplicate sources detected' error, got: %v", err)
	}
}

func TestValidatePort_EmptyAndDisabled(t *testing.T) {
	if err := validatePortInList("", []string{}); err != nil {
		t.Errorf("Expected no error for empty string, got: %v", err)
	}

	if err := validatePortInList("disabled", []string{}); err != nil {
		t.Errorf("Expected no error for 'disabled', got: %v", err)
	}
}

func TestFindPortDuplicates_NoDuplicates(t *testing.T) {
	mockPorts := []string{
		"Chrome:output_FL",
		"Firefox:output_FL",
		"system:capture_1",
	}

	duplicates := findPortDuplicatesInList("Chrome:output_FL", mockPorts)

	if len(duplicates) != 1 {
		t.Errorf("Expected 1 duplicate (itself), got %d: %v", len(duplicates), duplicates)
	}
}

func TestNodePortsInList(t *testing.T) {
	mockPorts := []string{
		"alsa_output.usb:monitor_FL",
		"alsa_output.usb:monitor_FR",
		"alsa_output.usb-2:monitor_FL", // Different node sharing a prefix
		"system:capture_1",
	}

	ports := nodePortsInList("alsa_output.usb", mockPorts)
	if len(ports) != 2 {
		t.Errorf("Expected 2 ports for node, got %d: %v", len(ports), ports)
	}

	if ports := nodePortsInList("missing", mockPorts); len(ports) != 0 {
		t.Errorf("Expected no ports for missing node, got %v", ports)
	}
}

func TestBuildRecordArgs(t *testing.T) {
	tap := NewPipeWireTap("alsa_output.usb", 44100, func([]byte, int) {})
	args := strings.Join(tap.buildRecordArgs(), " ")

	for _, want := range []string{"pw-record", "--format=u8", "--rate=44100", "--channels=1", "stream.capture.sink=true", "--target=alsa_output.usb"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected %q in %q", want, args)
		}
	}
	if !strings.HasSuffix(args, " -") {
		t.Errorf("Expected recording to stdout, got %q", args)
	}

	untargeted := strings.Join(NewPipeWireTap("", 8000, func([]byte, int) {}).buildRecordArgs(), " ")
	if strings.Contains(untargeted, "--target") {
		t.Errorf("Expected no target flag without a target, got %q", untargeted)
	}
}

func TestPipeWireTapWindow(t *testing.T) {
	tap := NewPipeWireTap("", 44100, func([]byte, int) {})

	min, max := tap.CaptureWindowRange()
	if err := tap.SetCaptureWindow(max); err != nil {
		t.Errorf("Expected max window to be accepted, got: %v", err)
	}
	if err := tap.SetCaptureWindow(min - 1); err == nil {
		t.Error("Expected error for window below range")
	}

	// Releasing a tap that never ran is fine, twice
	if err := tap.Release(); err != nil {
		t.Errorf("Release failed: %v", err)
	}
	if err := tap.Release(); err != nil {
		t.Errorf("Second release failed: %v", err)
	}
	if err := tap.Enable(); err != ErrTapReleased {
		t.Errorf("Expected ErrTapReleased, got: %v", err)
	}
}

func TestPipeWirePlayerSessionIsMix(t *testing.T) {
	p := NewPipeWirePlayer(PlayerCallbacks{})
	if p.SessionID() != 0 {
		t.Errorf("Expected session 0, got %d", p.SessionID())
	}
	if err := p.Start(); err == nil {
		t.Error("Expected start on idle player to fail")
	}
	if err := p.Release(); err != nil {
		t.Errorf("Release failed: %v", err)
	}
}
