// Package play previews a finished container with whatever desktop player
// is installed.
package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/playcapture/internal/config"
)

// preferred players, in order
var players = []string{"vlc", "mpv", "ffplay", "aplay"}

type Player struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

func New(cfg *config.Config) *Player {
	return &Player{cfg: cfg, lookPath: exec.LookPath}
}

// Play plays the configured container and blocks until the player exits or
// ctx is cancelled.
func (p *Player) Play(ctx context.Context) error {
	return p.PlayFile(ctx, p.cfg.ContainerPath())
}

func (p *Player) PlayFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recording not found: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("recording is empty: %s", path)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	args := playerArgs(player, path)
	cmd := exec.CommandContext(ctx, player, args...)
	slog.Info("Previewing recording", "player", player, "file", path)
	slog.Debug("Running audio player", "command", player+" "+strings.Join(args, " "))

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback failed with %s: %w\nOutput: %s", player, err, strings.TrimSpace(string(out)))
	}

	slog.Debug("Preview completed", "file", path)
	return nil
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

func playerArgs(player, file string) []string {
	switch player {
	case "vlc":
		return []string{"--intf", "dummy", "--play-and-exit", file}
	case "mpv":
		return []string{"--no-video", file}
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "error", file}
	default:
		return []string{file}
	}
}
