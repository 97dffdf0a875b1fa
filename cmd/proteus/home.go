package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/proteus-gripper/proteus/internal/logger"
	"github.com/proteus-gripper/proteus/pkg/homing"
	"github.com/proteus-gripper/proteus/pkg/robot"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type HomeCommand struct {
	Args struct {
		Roles []string `positional-arg-name:"role" description:"leader/trigger or follower/gripper (default: both)"`
	} `positional-args:"yes"`
}

func parseRoles(names []string) ([]robot.Role, error) {
	if len(names) == 0 {
		return robot.AllRoles(), nil
	}
	var roles []robot.Role
	for _, name := range names {
		role, ok := robot.ParseRole(name)
		if !ok {
			return nil, &robot.ValidationError{Field: "role", Value: name, Reason: "unknown role"}
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (c *HomeCommand) Execute(args []string) error {
	roles, err := parseRoles(c.Args.Roles)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithName(ctx, "home")

	r, err := openRig(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Println(headerStyle.Render("Proteus Homing"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))

	pending := make(map[robot.Role]<-chan homing.Result)
	for _, role := range roles {
		results, err := r.session.Home(role)
		if err != nil {
			return fmt.Errorf("home %s: %w", role.Part(), err)
		}
		pending[role] = results
		fmt.Printf("Seeking the %s hard stop...\n", role.Part())
	}

	var failed []error
	for _, role := range roles {
		var res homing.Result
		select {
		case res = <-pending[role]:
		case <-ctx.Done():
			for _, rl := range roles {
				r.session.CancelHoming(rl)
			}
			res = <-pending[role]
		}
		printHoming(res)
		if res.Err != nil {
			failed = append(failed, res.Err)
		}
	}
	return errors.Join(failed...)
}

func printHoming(res homing.Result) {
	if res.State == homing.Succeeded {
		fmt.Printf("  %s %s homed at torque %.4f Nm after %d polls, position is now %g\n",
			successStyle.Render("✓"), res.Role.Part(), res.Torque, res.Polls, res.Reference)
		return
	}
	fmt.Printf("  %s %s: %v\n", failureStyle.Render("✗"), res.Role.Part(), res.Err)
}
