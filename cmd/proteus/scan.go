package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"
	"gopkg.in/yaml.v3"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

type ScanCommand struct {
	BaudRate int `long:"baud-rate" default:"1000000" description:"Bus baud rate"`
	MaxID    int `long:"max-id" default:"20" description:"Highest servo ID to probe"`
}

type foundServo struct {
	port  string
	id    int
	model any
}

func (s foundServo) key() string {
	return fmt.Sprintf("%s#%d", s.port, s.id)
}

func (c *ScanCommand) findServos() []foundServo {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var found []foundServo
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		bus, err := feetech.NewBus(feetech.BusConfig{
			Port:     port,
			BaudRate: c.BaudRate,
			Protocol: feetech.ProtocolSTS,
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		servos, err := bus.Scan(ctx, 1, c.MaxID)
		cancel()
		bus.Close()
		if err != nil {
			continue
		}

		for _, s := range servos {
			fmt.Printf("  Found servo %d on %s\n", s.ID, port)
			found = append(found, foundServo{port: port, id: s.ID, model: s.Model})
		}
	}
	return found
}

func pickServo(title string, servos []foundServo, exclude string) (foundServo, error) {
	var options []huh.Option[string]
	for _, s := range servos {
		if s.key() == exclude {
			continue
		}
		label := fmt.Sprintf("servo %d on %s (model %v)", s.id, s.port, s.model)
		options = append(options, huh.NewOption(label, s.key()))
	}

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return foundServo{}, err
	}

	for _, s := range servos {
		if s.key() == choice {
			return s, nil
		}
	}
	return foundServo{}, fmt.Errorf("no servo selected")
}

func (c *ScanCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Proteus Scan"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println("Scanning serial ports for servos...")
	fmt.Println()

	servos := c.findServos()
	if len(servos) < 2 {
		fmt.Println("Need two servos, one for the trigger and one for the gripper.")
		fmt.Println("Make sure the bus is connected and powered on.")
		os.Exit(1)
	}

	leader, err := pickServo("Which servo drives the trigger?", servos, "")
	if err != nil {
		return err
	}
	follower, err := pickServo("Which servo drives the gripper?", servos, leader.key())
	if err != nil {
		return err
	}

	cfg := robot.Default()
	snippet := struct {
		Driver   robot.DriverConfig   `yaml:"driver"`
		Leader   robot.ActuatorConfig `yaml:"leader"`
		Follower robot.ActuatorConfig `yaml:"follower"`
	}{
		Driver:   robot.DriverConfig{Kind: robot.DriverFeetech, BaudRate: c.BaudRate},
		Leader:   cfg.Leader,
		Follower: cfg.Follower,
	}
	snippet.Leader.Port, snippet.Leader.ServoID = leader.port, leader.id
	snippet.Follower.Port, snippet.Follower.ServoID = follower.port, follower.id

	out, err := yaml.Marshal(snippet)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	fmt.Println()
	fmt.Println(successStyle.Render(fmt.Sprintf("Add this to %s:", robot.DefaultConfigFile)))
	fmt.Println()
	fmt.Print(string(out))
	return nil
}
