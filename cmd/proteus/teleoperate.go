package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/proteus-gripper/proteus/internal/logger"
	"github.com/proteus-gripper/proteus/pkg/homing"
	"github.com/proteus-gripper/proteus/pkg/monitor"
	"github.com/proteus-gripper/proteus/pkg/record"
	"github.com/proteus-gripper/proteus/pkg/robot"
	"github.com/proteus-gripper/proteus/pkg/teleop"
)

type TeleoperateCommand struct {
	Record      string `long:"record" description:"Append telemetry to this CBOR file"`
	RecordEvery uint64 `long:"record-every" default:"10" description:"Keep every nth sample and mirror step"`
	Start       bool   `long:"start" description:"Start mirroring immediately"`
}

const (
	headerHeight = 4 // title, status, telemetry, blank
	legendHeight = 2 // legend row + blank
	footerHeight = 8 // log box + key help
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	alphaStep    = 0.01
)

var roleColors = map[robot.Role]string{
	robot.Leader:   "51",  // cyan
	robot.Follower: "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	onStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// logWriter feeds zap output into the log box. Lines are dropped when the
// box falls behind.
type logWriter chan string

func (w logWriter) Write(p []byte) (int, error) {
	select {
	case w <- strings.TrimRight(string(p), "\n"):
	default:
	}
	return len(p), nil
}

type teleopModel struct {
	ctx     context.Context
	session *teleop.Session
	monitor *monitor.Monitor
	rec     *record.Recorder // nil when not recording
	logCh   <-chan string

	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	latest   monitor.Snapshot
	last     map[robot.Role]float64 // previous plotted positions
	quitting bool
}

// Messages from the loops
type snapshotMsg monitor.Snapshot
type eventMsg teleop.Event
type homingMsg homing.Result
type logMsg string

func waitForSnapshot(m *monitor.Monitor) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-m.Updates())
	}
}

func waitForEvent(s *teleop.Session) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-s.Events()
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func waitForHoming(results <-chan homing.Result) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-results
		if !ok {
			return nil
		}
		return homingMsg(res)
	}
}

func waitForLog(logs <-chan string) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-logs)
	}
}

func newTeleopModel(ctx context.Context, s *teleop.Session, mon *monitor.Monitor, rec *record.Recorder, logs <-chan string) teleopModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-1, 8),
	)
	for _, role := range robot.AllRoles() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(roleColors[role]))
		chart.SetDataSetStyles(role.Part(), runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctx:     ctx,
		session: s,
		monitor: mon,
		rec:     rec,
		logCh:   logs,
		chart:   &chart,
	}
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// moved reports whether either position changed since the last plot.
func (m *teleopModel) moved(s monitor.Snapshot) bool {
	if m.last == nil {
		return true
	}
	return s.Leader.Position != m.last[robot.Leader] || s.Follower.Position != m.last[robot.Follower]
}

func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.monitor),
		waitForEvent(m.session),
		waitForLog(m.logCh),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case snapshotMsg:
		s := monitor.Snapshot(msg)
		m.latest = s
		if m.moved(s) {
			m.chart.PushDataSet(robot.Leader.Part(), s.Leader.Position)
			m.chart.PushDataSet(robot.Follower.Part(), s.Follower.Position)
			m.chart.DrawAll()
			m.last = map[robot.Role]float64{
				robot.Leader:   s.Leader.Position,
				robot.Follower: s.Follower.Position,
			}
		}
		return m, waitForSnapshot(m.monitor)

	case eventMsg:
		e := teleop.Event(msg)
		if m.rec != nil {
			m.rec.Event(e)
		}
		if e.Err != nil {
			m.addLog(fmt.Sprintf("%s: %v", e.Kind, e.Err))
		}
		return m, waitForEvent(m.session)

	case homingMsg:
		res := homing.Result(msg)
		if m.rec != nil {
			m.rec.Homing(res)
		}
		return m, nil

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.logCh)
	}

	return m, nil
}

func (m teleopModel) handleKey(key string) (tea.Model, tea.Cmd) {
	s := m.session
	var err error

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "g":
		err = s.Start()
	case "s":
		s.Stop()
	case "t", "h":
		role := robot.Leader
		if key == "h" {
			role = robot.Follower
		}
		results, herr := s.Home(role)
		if herr != nil {
			err = herr
			break
		}
		return m, waitForHoming(results)
	case "+", "=":
		err = s.SetAlpha(s.Alpha() + alphaStep)
	case "-":
		err = s.SetAlpha(s.Alpha() - alphaStep)
	case "o":
		err = s.Jog(teleop.Open)
	case "c":
		err = s.Jog(teleop.Close)
	case "x":
		s.Halt()
	case "z":
		err = s.Zero(m.ctx, robot.Follower)
	}

	if err != nil {
		logger.ErrorKV(m.ctx, "command refused", "key", key, "error", err)
	}
	return m, nil
}

// homingStatus shows the probe while seeking, e.g. "seeking -0.50 rot/s until torque below -0.020".
func homingStatus(s *teleop.Session, role robot.Role) string {
	p, ok := s.HomingSeeking(role)
	if !ok {
		return s.HomingState(role).String()
	}
	return fmt.Sprintf("seeking %+.2f rot/s until torque %s %.3f", p.Velocity, p.Crossing, p.Threshold)
}

func onOff(on bool) string {
	if on {
		return onStyle.Render("on")
	}
	return offStyle.Render("off")
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	s := m.session
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Proteus Teleoperate"))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "mirror %s  alpha %.2f  homing trigger %s gripper %s  iterations %d failures %d\n",
		onOff(s.Running()), s.Alpha(),
		homingStatus(s, robot.Leader), homingStatus(s, robot.Follower),
		s.Mirror().Iterations(), s.Mirror().Failures())

	l, f := m.latest.Leader, m.latest.Follower
	sb.WriteString(statusStyle.Render(fmt.Sprintf(
		"trigger %6.3f rot %7.4f Nm   gripper %6.3f rot %7.4f Nm   polls %d failed %d",
		l.Position, l.Torque, f.Position, f.Torque, m.monitor.Polls(), m.monitor.Failures())))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9"))

	logLines := statusStyle.Render("no messages")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render(
		"g start  s stop  t home trigger  h home gripper  +/- alpha  o open  c close  x halt  z zero  q quit"))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, role := range robot.AllRoles() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(roleColors[role])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+role.Part())
	}
	return strings.Join(items, "  ")
}

func (c *TeleoperateCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logs := make(chan string, 64)
	setupLogger(logWriter(logs))
	defer setupLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithName(ctx, "teleoperate")

	var (
		rec         *record.Recorder
		sessionOpts []teleop.SessionOption
		monitorOpts []monitor.Option
	)
	if c.Record != "" {
		rec, err = record.Create(c.Record, record.WithEvery(c.RecordEvery))
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.ErrorKV(ctx, "Closing recording failed", "error", err)
			}
			if n := rec.Dropped(); n > 0 {
				logger.WarnKV(ctx, "Recording dropped entries", "dropped", n)
			}
		}()
		sessionOpts = append(sessionOpts, teleop.WithSteps(rec.Step))
		monitorOpts = append(monitorOpts, monitor.WithSink(rec.Sample))
		logger.InfoKV(ctx, "recording", "path", c.Record, "session", rec.SessionID())
	}

	r, err := openRig(ctx, cfg, sessionOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping gripper: %v\n", err)
		}
	}()

	monitorOpts = append(monitorOpts, monitor.WithMetrics(r.metrics))
	mon := monitor.New(r.session.Leader(), r.session.Follower(), cfg.Monitor, monitorOpts...)

	if c.Start {
		if err := r.session.Start(); err != nil {
			return err
		}
	}

	p := tea.NewProgram(newTeleopModel(ctx, r.session, mon, rec, logs), tea.WithAltScreen())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(mon.Run(gctx)) })
	g.Go(func() error { return r.serveMetrics(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		p.Quit()
		return nil
	})
	g.Go(func() error {
		defer stop()
		_, err := p.Run()
		return err
	})
	return g.Wait()
}
