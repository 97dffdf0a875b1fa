package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/proteus-gripper/proteus/pkg/record"
)

type ReplayCommand struct {
	Session string        `long:"session" description:"Only entries from this session id"`
	Kinds   []string      `long:"kind" choice:"sample" choice:"step" choice:"homing" choice:"event" description:"Only entries of this kind (repeatable)"`
	Since   time.Duration `long:"since" description:"Skip entries older than this, relative to now"`
	Print   bool          `short:"p" long:"print" description:"Print every entry instead of a summary"`
	Args    struct {
		Path string `positional-arg-name:"file" required:"yes"`
	} `positional-args:"yes"`
}

func (c *ReplayCommand) filter() record.Filter {
	f := record.Filter{SessionID: c.Session}
	for _, k := range c.Kinds {
		kind, _ := record.ParseKind(k)
		f.Kinds = append(f.Kinds, kind)
	}
	if c.Since > 0 {
		f.Since = time.Now().Add(-c.Since)
	}
	return f
}

func (c *ReplayCommand) Execute(args []string) error {
	r, err := record.Open(c.Args.Path, c.filter())
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer r.Close()

	if !c.Print {
		sum, err := record.Summarize(r)
		if err != nil {
			return fmt.Errorf("read recording: %w", err)
		}
		printSummary(sum)
		return nil
	}

	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read recording: %w", err)
		}
		fmt.Println(formatEntry(e))
	}
}

func printSummary(s record.Summary) {
	fmt.Println(headerStyle.Render("Recording"))
	fmt.Printf("  sessions:        %d\n", len(s.Sessions))
	for _, id := range s.Sessions {
		fmt.Printf("    %s\n", dimStyle.Render(id))
	}
	if !s.First.IsZero() {
		fmt.Printf("  span:            %s .. %s (%s)\n",
			s.First.Format(time.TimeOnly), s.Last.Format(time.TimeOnly), s.Duration().Round(time.Millisecond))
	}
	for _, k := range record.AllKinds() {
		fmt.Printf("  %-16s %d\n", k.String()+":", s.Counts[k])
	}
	fmt.Printf("  peak torque:     %.4f Nm\n", s.PeakTorque)
	fmt.Printf("  homing failures: %d\n", s.HomingFailures)
}

func formatEntry(e record.Entry) string {
	ts := e.Timestamp.Format("15:04:05.000")
	switch {
	case e.Sample != nil:
		return fmt.Sprintf("%s sample #%d trigger %.3f/%.4f gripper %.3f/%.4f",
			ts, e.Sample.Seq, e.Sample.Leader.Position, e.Sample.Leader.Torque,
			e.Sample.Follower.Position, e.Sample.Follower.Torque)
	case e.Step != nil:
		return fmt.Sprintf("%s step raw %.3f filtered %.3f target %.3f",
			ts, e.Step.Raw, e.Step.Filtered, e.Step.Target)
	case e.Homing != nil:
		line := fmt.Sprintf("%s homing %s %s polls %d torque %.4f",
			ts, e.Homing.Role, e.Homing.State, e.Homing.Polls, e.Homing.Torque)
		if e.Homing.Error != "" {
			line += " " + failureStyle.Render(e.Homing.Error)
		}
		return line
	case e.Event != nil:
		return fmt.Sprintf("%s event %s %s", ts, e.Event.Kind, e.Event.Role)
	default:
		return fmt.Sprintf("%s %s", ts, e.Kind)
	}
}
